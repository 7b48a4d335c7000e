package ipc

import (
	"errors"
	"fmt"
	"time"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/session"
	"google.golang.org/protobuf/types/known/structpb"
)

// Op names a request
type Op string

const (
	OpView    Op = "view"
	OpRefresh Op = "refresh"
	OpSubmit  Op = "submit"
	OpStage   Op = "stage"
	OpApply   Op = "apply"
	OpCancel  Op = "cancel"
	OpHealth  Op = "health"
)

// Request is one call from a client
type Request struct {
	ID     string
	Op     Op
	Change *hierarchy.PendingChange
}

// Response carries the view and refresh health after the request ran, or
// an error
type Response struct {
	ID     string
	Error  string
	View   *hierarchy.View
	Health *session.Health
}

// NewRequest builds a request with no change attached
func NewRequest(id string, op Op) Request {
	return Request{ID: id, Op: op}
}

// NewChangeRequest builds a submit or stage request
func NewChangeRequest(id string, op Op, c hierarchy.PendingChange) Request {
	return Request{ID: id, Op: op, Change: &c}
}

// NewErrorResponse creates an error response for request id
func NewErrorResponse(id, errMsg string) Response {
	return Response{ID: id, Error: errMsg}
}

// EncodeRequest converts a request into a protobuf Struct
func EncodeRequest(r Request) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"id": r.ID,
		"op": string(r.Op),
	}
	if r.Change != nil {
		m["change"] = changeToMap(*r.Change)
	}
	return structpb.NewStruct(m)
}

// DecodeRequest reads a request produced by EncodeRequest
func DecodeRequest(s *structpb.Struct) (Request, error) {
	f := s.GetFields()
	r := Request{
		ID: f["id"].GetStringValue(),
		Op: Op(f["op"].GetStringValue()),
	}
	if r.Op == "" {
		return r, fmt.Errorf("request has no op")
	}
	if cv, ok := f["change"]; ok {
		c, err := changeFromStruct(cv.GetStructValue())
		if err != nil {
			return r, err
		}
		r.Change = &c
	}
	return r, nil
}

// EncodeResponse converts a response into a protobuf Struct
func EncodeResponse(r Response) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"id": r.ID,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.View != nil {
		m["view"] = viewToMap(*r.View)
	}
	if r.Health != nil {
		m["health"] = healthToMap(*r.Health)
	}
	return structpb.NewStruct(m)
}

// DecodeResponse reads a response produced by EncodeResponse
func DecodeResponse(s *structpb.Struct) (Response, error) {
	f := s.GetFields()
	r := Response{
		ID:    f["id"].GetStringValue(),
		Error: f["error"].GetStringValue(),
	}
	if vv, ok := f["view"]; ok {
		v, err := viewFromStruct(vv.GetStructValue())
		if err != nil {
			return r, err
		}
		r.View = &v
	}
	if hv, ok := f["health"]; ok {
		h, err := healthFromStruct(hv.GetStructValue())
		if err != nil {
			return r, err
		}
		r.Health = &h
	}
	return r, nil
}

func healthToMap(h session.Health) map[string]interface{} {
	m := map[string]interface{}{
		"failures": h.ConsecutiveFailures,
	}
	if !h.LastRefresh.IsZero() {
		m["last_refresh"] = h.LastRefresh.Format(time.RFC3339Nano)
	}
	if h.LastError != nil {
		m["last_error"] = h.LastError.Error()
	}
	return m
}

func healthFromStruct(s *structpb.Struct) (session.Health, error) {
	if s == nil {
		return session.Health{}, fmt.Errorf("health is not an object")
	}
	f := s.GetFields()
	h := session.Health{ConsecutiveFailures: int(f["failures"].GetNumberValue())}
	if ts := f["last_refresh"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return h, fmt.Errorf("bad last_refresh: %w", err)
		}
		h.LastRefresh = t
	}
	if msg := f["last_error"].GetStringValue(); msg != "" {
		h.LastError = errors.New(msg)
	}
	return h, nil
}

func changeToMap(c hierarchy.PendingChange) map[string]interface{} {
	return map[string]interface{}{
		"kind":      c.Kind.String(),
		"device_id": c.DeviceID,
		"master_id": c.MasterID,
		"name":      c.Name,
		"return":    c.Return.String(),
	}
}

func changeFromStruct(s *structpb.Struct) (hierarchy.PendingChange, error) {
	if s == nil {
		return hierarchy.PendingChange{}, fmt.Errorf("change is not an object")
	}
	f := s.GetFields()
	var c hierarchy.PendingChange
	switch kind := f["kind"].GetStringValue(); kind {
	case hierarchy.ChangeReattach.String():
		c.Kind = hierarchy.ChangeReattach
	case hierarchy.ChangeCreateMaster.String():
		c.Kind = hierarchy.ChangeCreateMaster
	case hierarchy.ChangeRemoveMaster.String():
		c.Kind = hierarchy.ChangeRemoveMaster
	default:
		return c, fmt.Errorf("unknown change kind %q", kind)
	}
	c.DeviceID = int(f["device_id"].GetNumberValue())
	c.MasterID = int(f["master_id"].GetNumberValue())
	c.Name = f["name"].GetStringValue()
	ret, err := hierarchy.ParseReturnMode(f["return"].GetStringValue())
	if err != nil {
		return c, err
	}
	c.Return = ret
	return c, nil
}

func viewToMap(v hierarchy.View) map[string]interface{} {
	rows := make([]interface{}, len(v.Rows))
	for i, r := range v.Rows {
		rows[i] = map[string]interface{}{
			"handle":     int(r.Handle),
			"id":         r.ID,
			"name":       r.Name,
			"role":       int(r.Role),
			"icon":       int(r.Icon),
			"depth":      r.Depth,
			"generation": float64(r.Generation),
		}
	}
	pending := make([]interface{}, len(v.Pending))
	for i, c := range v.Pending {
		pending[i] = changeToMap(c)
	}
	return map[string]interface{}{
		"generation": float64(v.Generation),
		"mode":       v.Mode.String(),
		"rows":       rows,
		"pending":    pending,
	}
}

func viewFromStruct(s *structpb.Struct) (hierarchy.View, error) {
	if s == nil {
		return hierarchy.View{}, fmt.Errorf("view is not an object")
	}
	f := s.GetFields()
	mode, err := hierarchy.ParseMode(f["mode"].GetStringValue())
	if err != nil {
		return hierarchy.View{}, err
	}
	v := hierarchy.View{
		Generation: uint64(f["generation"].GetNumberValue()),
		Mode:       mode,
	}
	for _, rv := range f["rows"].GetListValue().GetValues() {
		rf := rv.GetStructValue().GetFields()
		v.Rows = append(v.Rows, hierarchy.Row{
			Handle:     hierarchy.NodeID(rf["handle"].GetNumberValue()),
			ID:         int(rf["id"].GetNumberValue()),
			Name:       rf["name"].GetStringValue(),
			Role:       hierarchy.Role(rf["role"].GetNumberValue()),
			Icon:       hierarchy.IconKind(rf["icon"].GetNumberValue()),
			Depth:      int(rf["depth"].GetNumberValue()),
			Generation: uint64(rf["generation"].GetNumberValue()),
		})
	}
	for _, pv := range f["pending"].GetListValue().GetValues() {
		c, err := changeFromStruct(pv.GetStructValue())
		if err != nil {
			return v, err
		}
		v.Pending = append(v.Pending, c)
	}
	return v, nil
}
