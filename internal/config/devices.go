package config

import "github.com/AK1699/Cognitest-AI-sub003/pkg/domain"

// DefaultDevices 返回内置设备预设
func DefaultDevices() []Device {
	return []Device{
		{ID: "desktop-chrome", Name: "Desktop Chrome", Width: 1920, Height: 1080, Type: "desktop"},
		{ID: "desktop-small", Name: "Desktop Small", Width: 1280, Height: 720, Type: "desktop"},
		{ID: "iphone-14", Name: "iPhone 14", Width: 390, Height: 844, Type: "mobile"},
		{ID: "pixel-7", Name: "Pixel 7", Width: 412, Height: 915, Type: "mobile"},
		{ID: "ipad-air", Name: "iPad Air", Width: 820, Height: 1180, Type: "tablet"},
	}
}

// ToDeviceInfo 转换为领域设备信息
func (d Device) ToDeviceInfo() domain.DeviceInfo {
	return domain.DeviceInfo{
		ID:       d.ID,
		Name:     d.Name,
		Viewport: domain.Viewport{Width: d.Width, Height: d.Height},
		Type:     d.Type,
	}
}
