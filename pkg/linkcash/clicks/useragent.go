package clicks

import (
	"strings"

	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mssola/useragent"
)

// ClientInfo is what can be derived from a user agent string.
type ClientInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

// ParseUserAgent classifies a user agent. It never fails: anything it
// cannot recognise is reported as unknown.
func ParseUserAgent(raw string) ClientInfo {
	info := ClientInfo{Browser: models.Unknown, OS: models.Unknown, Device: models.DeviceUnknown}
	raw = cleanText(raw, 0)
	if raw == "" {
		return info
	}

	ua := useragent.New(raw)

	name, _ := ua.Browser()
	if name = cleanText(name, maxNameLength); name != "" {
		info.Browser = name
	}
	if os := cleanText(ua.OSInfo().Name, maxNameLength); os != "" {
		info.OS = os
	} else if os := cleanText(ua.OS(), maxNameLength); os != "" {
		info.OS = os
	}

	switch {
	case ua.Bot():
		info.Device = models.DeviceBot
	case strings.Contains(raw, "iPad") || strings.Contains(raw, "Tablet"):
		info.Device = models.DeviceTablet
	case ua.Mobile():
		info.Device = models.DeviceMobile
	case ua.Platform() != "" || info.OS != models.Unknown:
		info.Device = models.DeviceDesktop
	}
	return info
}
