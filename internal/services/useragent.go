package services

import (
	"strings"

	"github.com/mssola/user_agent"
)

// DeviceSummary is a readable digest of a User-Agent header.
type DeviceSummary struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Mobile  bool   `json:"mobile"`
	Bot     bool   `json:"bot"`
}

func DescribeUserAgent(raw string) *DeviceSummary {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "unknown" {
		return nil
	}
	ua := user_agent.New(raw)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + version)
	return &DeviceSummary{
		Browser: browser,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}
