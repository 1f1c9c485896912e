// Package uaparser does best-effort user-agent decomposition for redirect
// logs. First matching pattern wins; fields that match nothing stay empty.
package uaparser

import (
	"regexp"
	"strings"
)

type Result struct {
	Browser         string
	BrowserVersion  string
	Platform        string
	PlatformVersion string
	DeviceType      string
}

type platformPattern struct {
	name       string
	re         *regexp.Regexp
	dotVersion bool
}

var platformPatterns = []platformPattern{
	{name: "Windows", re: regexp.MustCompile(`(?i)Windows NT ([0-9.]+)`)},
	{name: "macOS", re: regexp.MustCompile(`(?i)Mac OS X ([0-9_]+)`), dotVersion: true},
	{name: "Android", re: regexp.MustCompile(`(?i)Android ([0-9.]+)`)},
	{name: "iOS", re: regexp.MustCompile(`(?i)iPhone OS ([0-9_]+)`), dotVersion: true},
	{name: "iOS", re: regexp.MustCompile(`(?i)iPad; CPU OS ([0-9_]+)`), dotVersion: true},
	{name: "Linux", re: regexp.MustCompile(`(?i)Linux`)},
}

type browserPattern struct {
	name string
	re   *regexp.Regexp
}

// Order matters: Edge and Opera ship a Chrome token, Chrome ships a Safari
// token, so the more specific patterns come first.
var browserPatterns = []browserPattern{
	{name: "Edge", re: regexp.MustCompile(`(?i)Edg/([0-9.]+)`)},
	{name: "Opera", re: regexp.MustCompile(`(?i)OPR/([0-9.]+)`)},
	{name: "Chrome", re: regexp.MustCompile(`(?i)Chrome/([0-9.]+)`)},
	{name: "Firefox", re: regexp.MustCompile(`(?i)Firefox/([0-9.]+)`)},
	{name: "Safari", re: regexp.MustCompile(`(?i)Version/([0-9.]+).*Safari`)},
	{name: "IE", re: regexp.MustCompile(`(?i)MSIE\s([0-9.]+)`)},
}

var (
	bareSafariRe = regexp.MustCompile(`(?i)Safari/([0-9.]+)`)
	mobileRe     = regexp.MustCompile(`(?i)Mobile|Android|iPhone|iPod|Windows Phone`)
	tabletRe     = regexp.MustCompile(`(?i)Tablet|iPad`)
)

func Parse(userAgent string) Result {
	var out Result
	if userAgent == "" {
		return out
	}

	for _, p := range platformPatterns {
		m := p.re.FindStringSubmatch(userAgent)
		if m == nil {
			continue
		}
		out.Platform = p.name
		if len(m) > 1 {
			out.PlatformVersion = m[1]
			if p.dotVersion {
				out.PlatformVersion = strings.ReplaceAll(out.PlatformVersion, "_", ".")
			}
		}
		break
	}

	for _, p := range browserPatterns {
		m := p.re.FindStringSubmatch(userAgent)
		if m == nil {
			continue
		}
		out.Browser = p.name
		out.BrowserVersion = m[1]
		break
	}
	if out.Browser == "" {
		// Safari without a Version token.
		if m := bareSafariRe.FindStringSubmatch(userAgent); m != nil {
			out.Browser = "Safari"
			out.BrowserVersion = m[1]
		}
	}

	switch {
	case tabletRe.MatchString(userAgent):
		out.DeviceType = "tablet"
	case mobileRe.MatchString(userAgent):
		out.DeviceType = "mobile"
	default:
		out.DeviceType = "desktop"
	}

	return out
}
