package isolarcloud

import (
	"context"
	"fmt"
)

const paramSettingCheckPath = "/openapi/platform/paramSettingCheck"

// ParamConfigVerification asks whether a device supports parameter configuration of
// the given kind. A successful reply with an unrecognized per-device flag yields
// SupportUnknown and no error.
func (c *Client) ParamConfigVerification(ctx context.Context, deviceUUID string, setType SetType) (Support, error) {
	resp, err := c.call(ctx, paramSettingCheckPath, map[string]any{
		"set_type": int(setType),
		"uuid":     deviceUUID,
	})
	if err != nil {
		return SupportUnknown, err
	}
	c.logger.Debugw("param config verification", "uuid", deviceUUID, "set_type", setType, "result", resp.data)

	if parseString(resp.data["check_result"]) != "1" {
		return SupportUnknown, resp.fail("could not check support for device %s set_type %d", deviceUUID, setType)
	}
	devices, err := resp.list("dev_result_list", false)
	if err != nil {
		return SupportUnknown, err
	}
	if len(devices) == 0 {
		return SupportUnknown, resp.fail("no device result for %s", deviceUUID)
	}

	switch flag := parseString(devices[0]["check_result"]); flag {
	case "1":
		return Supported, nil
	case "0":
		return Unsupported, nil
	default:
		c.logger.Warnw("unrecognized support flag", "uuid", deviceUUID, "set_type", setType, "check_result", flag)
		return SupportUnknown, nil
	}
}

// CheckReadSupport reports whether the device parameters can be read.
func (c *Client) CheckReadSupport(ctx context.Context, deviceUUID string) (Support, error) {
	return c.ParamConfigVerification(ctx, deviceUUID, SetTypeRead)
}

// CheckUpdateSupport reports whether the device parameters can be updated.
func (c *Client) CheckUpdateSupport(ctx context.Context, deviceUUID string) (Support, error) {
	return c.ParamConfigVerification(ctx, deviceUUID, SetTypeUpdate)
}

// ParseSetType accepts "read", "update" or the numeric vendor value.
func ParseSetType(value string) (SetType, error) {
	switch value {
	case "read", "2":
		return SetTypeRead, nil
	case "update", "0":
		return SetTypeUpdate, nil
	}
	return 0, fmt.Errorf("unknown set type %q", value)
}
