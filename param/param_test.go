package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-robotics/rclgo/middleware/inmem"
	"github.com/wayfarer-robotics/rclgo/node"
)

func callService(t *testing.T, mw *inmem.Middleware, n *node.Node, name string, req any) any {
	t.Helper()
	var target *node.Service
	for _, s := range n.ListServices() {
		if s.Name() == name {
			target = s
			break
		}
	}
	require.NotNil(t, target, "no such service: %s", name)

	client, err := n.CreateClient(name, nil)
	require.NoError(t, err)

	_, err = client.Call(req, func(any) {})
	require.NoError(t, err)

	gotReq, corrID, got := mw.TakeRequest(target.Handle())
	require.True(t, got)

	resp := target.Dispatch(gotReq)
	require.NoError(t, mw.SendResponse(target.Handle(), corrID, resp))

	respVal, got := mw.TakeResponse(client.Handle(), corrID)
	require.True(t, got)
	return respVal
}

func TestRegisterCreatesSixServices(t *testing.T) {
	mw := inmem.New()
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	store := NewStore()
	_, err = Register(n, store, nil)
	require.NoError(t, err)

	assert.Len(t, n.ListServices(), 6)
}

func TestGetAndSetParametersRoundTrip(t *testing.T) {
	mw := inmem.New()
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	store := NewStore()
	store.Declare("rate_hz", Value{Type: TypeInteger, IntValue: 10}, Descriptor{})
	_, err = Register(n, store, nil)
	require.NoError(t, err)

	resp := callService(t, mw, n, "talker/get_parameters", GetParametersRequest{Names: []string{"rate_hz"}})
	got := resp.(GetParametersResponse)
	require.Len(t, got.Values, 1)
	assert.Equal(t, int64(10), got.Values[0].IntValue)

	setResp := callService(t, mw, n, "talker/set_parameters", SetParametersRequest{
		Parameters: map[string]Value{"rate_hz": {Type: TypeInteger, IntValue: 20}},
	})
	results := setResp.(SetParametersResponse).Results
	assert.True(t, results["rate_hz"].Successful)

	e, ok := store.get("rate_hz")
	require.True(t, ok)
	assert.Equal(t, int64(20), e.value.IntValue)
}

func TestSetParametersRejectsReadOnly(t *testing.T) {
	mw := inmem.New()
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	store := NewStore()
	store.Declare("frame_id", Value{Type: TypeString, StringValue: "map"}, Descriptor{ReadOnly: true})
	_, err = Register(n, store, nil)
	require.NoError(t, err)

	resp := callService(t, mw, n, "talker/set_parameters", SetParametersRequest{
		Parameters: map[string]Value{"frame_id": {Type: TypeString, StringValue: "odom"}},
	})
	result := resp.(SetParametersResponse).Results["frame_id"]
	assert.False(t, result.Successful)

	e, ok := store.get("frame_id")
	require.True(t, ok)
	assert.Equal(t, "map", e.value.StringValue)
}

func TestSetParametersAtomicallyRejectsWholeBatchOnReadOnly(t *testing.T) {
	mw := inmem.New()
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	store := NewStore()
	store.Declare("a", Value{Type: TypeInteger, IntValue: 1}, Descriptor{})
	store.Declare("b", Value{Type: TypeInteger, IntValue: 2}, Descriptor{ReadOnly: true})
	_, err = Register(n, store, nil)
	require.NoError(t, err)

	resp := callService(t, mw, n, "talker/set_parameters_atomically", SetParametersAtomicallyRequest{
		Parameters: map[string]Value{
			"a": {Type: TypeInteger, IntValue: 100},
			"b": {Type: TypeInteger, IntValue: 200},
		},
	})
	result := resp.(SetParametersAtomicallyResponse).Result
	assert.False(t, result.Successful)

	e, _ := store.get("a")
	assert.Equal(t, int64(1), e.value.IntValue, "a must be unchanged: atomic batch rejected as a whole")
}

func TestListParametersFiltersByPrefix(t *testing.T) {
	mw := inmem.New()
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	store := NewStore()
	store.Declare("motion.max_speed", Value{Type: TypeDouble, DoubleValue: 1.5}, Descriptor{})
	store.Declare("sensors.lidar_rate", Value{Type: TypeInteger, IntValue: 10}, Descriptor{})
	_, err = Register(n, store, nil)
	require.NoError(t, err)

	resp := callService(t, mw, n, "talker/list_parameters", ListParametersRequest{Prefixes: []string{"motion."}})
	names := resp.(ListParametersResponse).Names
	assert.Equal(t, []string{"motion.max_speed"}, names)
}

func TestDescribeParametersReportsType(t *testing.T) {
	mw := inmem.New()
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	store := NewStore()
	store.Declare("enabled", Value{Type: TypeBool, BoolValue: true}, Descriptor{Description: "feature toggle"})
	_, err = Register(n, store, nil)
	require.NoError(t, err)

	resp := callService(t, mw, n, "talker/describe_parameters", DescribeParametersRequest{Names: []string{"enabled"}})
	descs := resp.(DescribeParametersResponse).Descriptors
	require.Len(t, descs, 1)
	assert.Equal(t, TypeBool, descs[0].Type)
	assert.Equal(t, "feature toggle", descs[0].Description)
}
