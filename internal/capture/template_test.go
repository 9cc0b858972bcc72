package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameTemplateRender(t *testing.T) {
	ts := time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)
	vars := TemplateVars{
		StreamerID:   "cool_streamer",
		StreamerName: "Cool Streamer",
		Platform:     "twitch",
		Quality:      "best",
		Timestamp:    ts,
	}

	tests := []struct {
		template string
		want     string
	}{
		{"{streamer_id}_{yyyyMMdd}_{HHmmss}", "cool_streamer_20241225_143000"},
		{"{platform}/{streamer_id}-{yyyy}-{MM}-{dd}", "twitch_cool_streamer-2024-12-25"},
		{"{streamer_name} {HHmmss}", "Cool Streamer 143000"},
	}
	for _, tc := range tests {
		tpl, err := NewFilenameTemplate(tc.template)
		require.NoError(t, err, tc.template)
		assert.Equal(t, tc.want, tpl.Render(vars), tc.template)
	}
}

func TestFilenameTemplateValidation(t *testing.T) {
	_, err := NewFilenameTemplate("{nope}")
	assert.ErrorContains(t, err, "unsupported template variable")

	_, err = NewFilenameTemplate("{streamer_id")
	assert.ErrorContains(t, err, "unbalanced")

	tpl, err := NewFilenameTemplate("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFilenameTemplate, tpl.raw)
}

func TestFilenameTemplateSanitizesTitle(t *testing.T) {
	tpl, err := NewFilenameTemplate("{title}")
	require.NoError(t, err)
	name := tpl.Render(TemplateVars{Title: `bad/naming:"here"`, Timestamp: time.Now()})
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, ":")
	assert.NotContains(t, name, `"`)
}

func TestResultErrorMessageSections(t *testing.T) {
	r := Result{
		Outcome:       OutcomeFailed,
		AgentError:    "stream read timed out",
		PlatformError: "HLS playlist 404",
	}
	msg := r.ErrorMessage()
	assert.Contains(t, msg, "[capture] stream read timed out")
	assert.Contains(t, msg, "[platform] HLS playlist 404")

	assert.Empty(t, Result{Outcome: OutcomeCompleted}.ErrorMessage())
	assert.Equal(t, "[capture] unknown failure", Result{Outcome: OutcomeFailed}.ErrorMessage())
}
