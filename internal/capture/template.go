package capture

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultFilenameTemplate is used when a schedule has no template of its own.
const DefaultFilenameTemplate = "{streamer_id}_{yyyyMMdd}_{HHmmss}"

var templateVarRe = regexp.MustCompile(`\{([^{}]+)\}`)

// FilenameTemplate renders output file names from {token} templates.
// Supported tokens: streamer_id, streamer_name, platform, title, quality,
// and the timestamp forms yyyy, yy, MM, dd, HH, mm, ss, yyyyMMdd, HHmmss,
// yyyyMMdd_HHmmss.
type FilenameTemplate struct {
	raw string
}

// TemplateVars carries the values substituted into a filename template.
type TemplateVars struct {
	StreamerID   string
	StreamerName string
	Platform     string
	Title        string
	Quality      string
	Timestamp    time.Time
}

var supportedVars = map[string]bool{
	"streamer_id": true, "streamer_name": true, "platform": true,
	"title": true, "quality": true,
	"yyyy": true, "yy": true, "MM": true, "dd": true,
	"HH": true, "mm": true, "ss": true,
	"yyyyMMdd": true, "HHmmss": true, "yyyyMMdd_HHmmss": true,
}

// NewFilenameTemplate validates the template and returns it. Unknown tokens
// and unbalanced braces are rejected so bad templates fail at schedule
// validation time, not at capture start.
func NewFilenameTemplate(raw string) (*FilenameTemplate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultFilenameTemplate
	}
	if strings.Count(raw, "{") != strings.Count(raw, "}") {
		return nil, fmt.Errorf("unbalanced braces in template %q", raw)
	}
	for _, m := range templateVarRe.FindAllStringSubmatch(raw, -1) {
		if !supportedVars[m[1]] {
			return nil, fmt.Errorf("unsupported template variable {%s}", m[1])
		}
	}
	return &FilenameTemplate{raw: raw}, nil
}

// Render produces the output file name (without extension).
func (t *FilenameTemplate) Render(vars TemplateVars) string {
	ts := vars.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	title := vars.Title
	if title == "" {
		title = vars.StreamerName + " Stream"
	}
	values := map[string]string{
		"streamer_id":     vars.StreamerID,
		"streamer_name":   vars.StreamerName,
		"platform":        vars.Platform,
		"title":           title,
		"quality":         vars.Quality,
		"yyyy":            ts.Format("2006"),
		"yy":              ts.Format("06"),
		"MM":              ts.Format("01"),
		"dd":              ts.Format("02"),
		"HH":              ts.Format("15"),
		"mm":              ts.Format("04"),
		"ss":              ts.Format("05"),
		"yyyyMMdd":        ts.Format("20060102"),
		"HHmmss":          ts.Format("150405"),
		"yyyyMMdd_HHmmss": ts.Format("20060102_150405"),
	}
	name := templateVarRe.ReplaceAllStringFunc(t.raw, func(m string) string {
		return sanitizeComponent(values[strings.Trim(m, "{}")])
	})
	return sanitizeFilename(name)
}

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

func sanitizeComponent(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	return strings.TrimSpace(s)
}

func sanitizeFilename(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._ ")
	if s == "" {
		s = "recording"
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
