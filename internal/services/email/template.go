package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// DailyEpisodeSubject is the subject of the episode-ready notification
const DailyEpisodeSubject = "Your daily episode is ready"

var dailyEpisodeTmpl = template.Must(template.New("daily").Parse(`<div style="font-family:Inter,ui-sans-serif,system-ui,Arial;color:#0f172a;padding:24px;background-color:#f8fafc">
  <div style="max-width:560px;margin:0 auto;background-color:#ffffff;border-radius:12px;padding:24px">
    <div style="font-size:16px;font-weight:600;margin-bottom:16px">Audiolingu</div>
    <h1 style="font-size:20px;line-height:1.4;margin:0 0 8px">{{.Subject}}</h1>
    <p style="font-size:14px;line-height:1.7;margin:0 0 16px;color:#334155">Hi {{.FirstName}}, your personalized language-learning podcast has been generated.</p>
    {{- if .EpisodeTitle}}
    <p style="font-size:14px;line-height:1.7;margin:0 0 16px;color:#334155"><strong>{{.EpisodeTitle}}</strong></p>
    {{- end}}
    <a href="{{.AppURL}}" style="display:inline-block;background-color:#0ea5e9;color:#ffffff;padding:10px 16px;border-radius:8px;text-decoration:none;font-size:14px;font-weight:600">Open Audiolingu</a>
    <p style="font-size:12px;color:#64748b;margin-top:16px">If the button does not work, paste this link into your browser: {{.AppURL}}</p>
  </div>
  <p style="font-size:11px;color:#94a3b8;margin-top:16px;text-align:center">You are receiving this because you subscribed to daily episodes. You can manage notifications in settings.</p>
</div>`))

// DailyEpisodeData fills the episode-ready template
type DailyEpisodeData struct {
	FirstName    string
	EpisodeTitle string
	AppURL       string
}

// RenderDailyEpisode builds the notification message for one recipient
func RenderDailyEpisode(to string, data DailyEpisodeData) (Message, error) {
	name := strings.TrimSpace(data.FirstName)
	if name == "" {
		name = "there"
	}
	appURL := strings.TrimSpace(data.AppURL)
	if appURL == "" {
		appURL = "#"
	}

	var buf bytes.Buffer
	err := dailyEpisodeTmpl.Execute(&buf, struct {
		Subject      string
		FirstName    string
		EpisodeTitle string
		AppURL       string
	}{DailyEpisodeSubject, name, data.EpisodeTitle, appURL})
	if err != nil {
		return Message{}, fmt.Errorf("rendering daily episode email: %w", err)
	}

	return Message{
		To:      to,
		Subject: DailyEpisodeSubject,
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Hi %s, your personalized language-learning podcast has been generated. %s", name, appURL),
	}, nil
}
