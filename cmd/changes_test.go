package cmd

import (
	"testing"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cliView() hierarchy.View {
	return hierarchy.View{Rows: []hierarchy.Row{
		{ID: 2, Name: "Virtual core pointer", Role: hierarchy.RoleMasterPointer},
		{ID: 5, Name: "Logitech USB Receiver", Role: hierarchy.RoleSlavePointer, Depth: 1},
		{ID: 3, Name: "Virtual core keyboard", Role: hierarchy.RoleMasterKeyboard},
		{ID: 8, Name: "AT Translated Set 2 keyboard", Role: hierarchy.RoleSlaveKeyboard, Depth: 1},
		{ID: 12, Name: "Left hand pointer", Role: hierarchy.RoleMasterPointer},
		{ID: hierarchy.UnassignedID, Name: hierarchy.UnassignedName, Role: hierarchy.RoleFloating},
		{ID: 9, Name: "Wacom Intuos Pen", Role: hierarchy.RoleFloatingSlave, Depth: 1},
	}}
}

func TestChangeBuilders(t *testing.T) {
	tests := []struct {
		name    string
		build   changeBuilder
		args    []string
		ret     string
		want    hierarchy.PendingChange
		wantErr string
	}{
		{name: "reattach by name", build: buildReattach, args: []string{"logitech", "left hand"}, want: hierarchy.Reattach(5, 12)},
		{name: "reattach by id", build: buildReattach, args: []string{"9", "3"}, want: hierarchy.Reattach(9, 3)},
		{name: "reattach to unassigned floats", build: buildReattach, args: []string{"5", "unassigned"}, want: hierarchy.Float(5)},
		{name: "reattach master refused", build: buildReattach, args: []string{"2", "3"}, wantErr: "device"},
		{name: "reattach onto slave refused", build: buildReattach, args: []string{"5", "8"}, wantErr: "master"},
		{name: "float", build: buildFloat, args: []string{"AT Translated Set 2 keyboard"}, want: hierarchy.Float(8)},
		{name: "create master joins words", build: buildCreateMaster, args: []string{"Right", "hand"}, want: hierarchy.CreateMaster("Right hand")},
		{name: "create master empty", build: buildCreateMaster, args: []string{" "}, wantErr: "empty"},
		{name: "remove master", build: buildRemoveMaster, args: []string{"left hand"}, ret: "floating", want: hierarchy.RemoveMaster(12, hierarchy.ReturnFloating)},
		{name: "remove master bad return", build: buildRemoveMaster, args: []string{"12"}, ret: "sideways", wantErr: "return mode"},
		{name: "remove slave refused", build: buildRemoveMaster, args: []string{"5"}, ret: "defaults", wantErr: "master"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build(cliView(), tt.args, tt.ret)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAfterSubmit(t *testing.T) {
	tests := []struct {
		name   string
		mode   hierarchy.Mode
		remote bool
		want   submitAction
	}{
		{"daemon staged", hierarchy.ModeStaged, true, submitStaged},
		{"daemon immediate", hierarchy.ModeImmediate, true, submitApplied},
		{"local staged", hierarchy.ModeStaged, false, submitApplyLocal},
		{"local immediate", hierarchy.ModeImmediate, false, submitApplied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, afterSubmit(tt.mode, tt.remote))
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := policyFromConfig(config.EngineConfig{Mode: "immediate", RemoveReturn: "floating"})
	require.NoError(t, err)
	assert.Equal(t, hierarchy.ModeImmediate, p.Mode)
	assert.Equal(t, hierarchy.ReturnFloating, p.RemoveReturn)

	_, err = policyFromConfig(config.EngineConfig{Mode: "later"})
	assert.Error(t, err)
	_, err = policyFromConfig(config.EngineConfig{RemoveReturn: "nowhere"})
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"list"}, {"edit"}, {"serve"}, {"pending"}, {"apply"}, {"cancel"},
		{"reattach"}, {"float"}, {"create-master"}, {"remove-master"},
		{"stage", "reattach"}, {"stage", "float"}, {"stage", "create-master"}, {"stage", "remove-master"},
		{"profile", "save"}, {"profile", "apply"}, {"profile", "list"},
		{"virtual"}, {"config", "set-mode"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], c.Name())
	}
	c, _, err := rootCmd.Find([]string{"stage", "remove-master"})
	require.NoError(t, err)
	assert.NotNil(t, c.Flags().Lookup("return"))

	c, _, err = rootCmd.Find([]string{"remove-master"})
	require.NoError(t, err)
	assert.Nil(t, c.Flags().Lookup("return"))
}
