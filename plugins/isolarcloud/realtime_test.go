package isolarcloud

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRealtimeDataDefaultsToEveryRegisteredPoint(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(nil, map[string]any{"ps_id": "P1"}))
	client := NewClient(transport, WithLogger(zaptest.NewLogger(t).Sugar()))

	result, err := client.RealtimeData(context.Background(), []string{"P1", "P2", "P1"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, transport.callCount())

	call := transport.lastCall()
	assert.Equal(t, []string{"P1", "P2", "P1"}, call.Params["ps_id_list"])
	assert.Equal(t, "1", call.Params["is_get_point_dict"])
	assert.Equal(t, defaultLang, call.Lang)

	requested := call.Params["point_id_list"].([]string)
	want := AllIDs().ToSlice()
	sort.Strings(want)
	assert.ElementsMatch(t, want, requested)

	assert.Len(t, result["P1"], len(registeredPoints))
	assert.Nil(t, result["P1"]["daily_yield"].Value)
}

func TestRealtimeDataEmptySelectionSendsNoPoints(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(nil, map[string]any{"ps_id": "P1"}))
	client := NewClient(transport)

	result, err := client.RealtimeData(context.Background(), []string{"P1"}, []string{})
	require.NoError(t, err)

	requested, ok := transport.lastCall().Params["point_id_list"].([]string)
	require.True(t, ok)
	assert.NotNil(t, requested)
	assert.Empty(t, requested)
	assert.Empty(t, result["P1"])

	encoded, err := gatewayJSON.Marshal(transport.lastCall().Params)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"point_id_list":[]`)
}

func TestRealtimeDataTwoPlants(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(
		[]map[string]any{{"point_id": "83022", "point_unit": "kWh", "point_name": "Daily Yield"}},
		map[string]any{"ps_id": "P1", "p83022": "123.4"},
		map[string]any{"ps_id": "P2"},
	))
	client := NewClient(transport)

	result, err := client.RealtimeData(context.Background(), []string{"P1", "P2"}, []string{"daily_yield"})
	require.NoError(t, err)

	require.Contains(t, result, "P1")
	require.Contains(t, result, "P2")

	p1 := result["P1"]["daily_yield"]
	assert.Equal(t, 123.4, p1.Value)
	assert.Equal(t, "83022", p1.ID)
	assert.Equal(t, "daily_yield", p1.Code)
	assert.Equal(t, strPtr("kWh"), p1.Unit)
	assert.Equal(t, strPtr("Daily Yield"), p1.Name)

	p2 := result["P2"]["daily_yield"]
	assert.Nil(t, p2.Value)
	assert.Equal(t, strPtr("kWh"), p2.Unit)
	assert.Equal(t, []string{"83022"}, transport.lastCall().Params["point_id_list"])
}

func TestRealtimeDataNumericPassthrough(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(nil,
		map[string]any{"ps_id": json.Number("42"), "p83099": json.Number("7.25"), "p83022": 3.5},
	))
	client := NewClient(transport)

	result, err := client.RealtimeData(context.Background(), []string{"42"}, []string{"83099", "daily_yield"})
	require.NoError(t, err)
	assert.Equal(t, []string{"83099", "83022"}, transport.lastCall().Params["point_id_list"])

	readings := result["42"]
	require.Contains(t, readings, "83099")
	assert.Equal(t, "83099", readings["83099"].ID)
	assert.Equal(t, 7.25, readings["83099"].Value)
	assert.Equal(t, 3.5, readings["daily_yield"].Value)
	assert.Nil(t, readings["83099"].Unit)
}

func TestRealtimeDataUnknownPointSendsNothing(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient(transport)

	result, err := client.RealtimeData(context.Background(), []string{"P1"}, []string{"daily_yield", "bogus_metric"})
	require.Error(t, err)
	assert.Nil(t, result)

	var unknown *UnknownMeasurePointError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "bogus_metric", unknown.Name)
	assert.Zero(t, transport.callCount())
}

func TestRealtimeDataRequiresPlants(t *testing.T) {
	transport := newFakeTransport()
	_, err := NewClient(transport).RealtimeData(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNoPlants)
	assert.Zero(t, transport.callCount())
}

func TestRealtimeDataKeepsUnparseableText(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(nil,
		map[string]any{"ps_id": "P1", "p83022": "N/A", "p83033": "NaN", "p83252": " 88 "},
	))
	result, err := NewClient(transport).RealtimeData(context.Background(), []string{"P1"}, []string{"daily_yield", "power", "battery_level_soc"})
	require.NoError(t, err)

	assert.Equal(t, "N/A", result["P1"]["daily_yield"].Value)
	assert.Equal(t, "NaN", result["P1"]["power"].Value)
	assert.Equal(t, 88.0, result["P1"]["battery_level_soc"].Value)
}

func TestRealtimeDataIgnoresNonPointKeys(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(nil,
		map[string]any{"ps_id": "P1", "ps_name": "Roof", "p83022": "1", "pfoo": "x", "p": "y"},
	))
	result, err := NewClient(transport).RealtimeData(context.Background(), []string{"P1"}, []string{"daily_yield"})
	require.NoError(t, err)
	assert.Len(t, result["P1"], 1)
	assert.Equal(t, 1.0, result["P1"]["daily_yield"].Value)
}

func TestRealtimeDataVendorError(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, map[string]any{
		"result_code": "E900",
		"result_msg":  "illegal access",
		"result_data": map[string]any{"device_point_list": []any{map[string]any{"ps_id": "P1"}}},
	})
	result, err := NewClient(transport).RealtimeData(context.Background(), []string{"P1"}, nil)
	require.Error(t, err)
	assert.Nil(t, result)

	var remote *RemoteServiceError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "E900", remote.Code)
	assert.Equal(t, "illegal access", remote.Message)
	assert.NotNil(t, remote.Body)
	assert.True(t, IsRemote(err))
	assert.False(t, IsBadRequest(err))
}

func TestRealtimeDataOAuthErrorField(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, map[string]any{
		"error":             "invalid_token",
		"error_description": "token expired",
	})
	_, err := NewClient(transport).RealtimeData(context.Background(), []string{"P1"}, nil)

	var remote *RemoteServiceError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "invalid_token", remote.Code)
	assert.Equal(t, "token expired", remote.Message)
}

func TestRealtimeDataMalformedBodies(t *testing.T) {
	cases := map[string]map[string]any{
		"no result_data":       {"result_code": "1"},
		"no device_point_list": ok(map[string]any{}),
		"list not a list":      ok(map[string]any{"device_point_list": "nope"}),
		"record without ps_id": ok(map[string]any{"device_point_list": []any{map[string]any{"p83022": "1"}}}),
		"bad point_dict":       ok(map[string]any{"point_dict": 5, "device_point_list": []any{}}),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			transport := newFakeTransport().respond(realtimePath, body)
			result, err := NewClient(transport).RealtimeData(context.Background(), []string{"P1"}, nil)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, IsRemote(err))
		})
	}
}

func TestRealtimeDataPropagatesTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	transport := newFakeTransport()
	transport.err = boom

	_, err := NewClient(transport).RealtimeData(context.Background(), []string{"P1"}, nil)
	require.ErrorIs(t, err, boom)
	assert.False(t, IsRemote(err))
}

func TestRealtimePlant(t *testing.T) {
	transport := newFakeTransport().respond(realtimePath, realtimeBody(nil,
		map[string]any{"ps_id": "P1", "p83033": 2.5},
	))
	readings, err := NewClient(transport, WithLang("_nl_NL")).RealtimePlant(context.Background(), "P1", []string{"power"})
	require.NoError(t, err)
	assert.Equal(t, 2.5, readings["power"].Value)
	assert.Equal(t, "_nl_NL", transport.lastCall().Lang)
	assert.Equal(t, []string{"P1"}, transport.lastCall().Params["ps_id_list"])
}

func TestCoerceValue(t *testing.T) {
	assert.Nil(t, coerceValue(nil))
	assert.Equal(t, 1.5, coerceValue("1.5"))
	assert.Equal(t, 1.5, coerceValue(json.Number("1.5")))
	assert.Equal(t, "Inf", coerceValue("Inf"))
	assert.Equal(t, "NaN", coerceValue("NaN"))
	assert.Equal(t, "1e400", coerceValue("1e400"))
	assert.Equal(t, "-1e400", coerceValue("-1e400"))
	assert.Equal(t, "1e400", coerceValue(json.Number("1e400")))
	assert.Equal(t, "", coerceValue(""))
	assert.Equal(t, 1.0, coerceValue(true))
	assert.Equal(t, 3.0, coerceValue(3))
}
