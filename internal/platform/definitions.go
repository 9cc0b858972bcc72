package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// definition holds the per-platform liveness probe.
type definition struct {
	displayName string
	check       func(ctx context.Context, client *http.Client, streamerID string) (*StreamInfo, error)
}

// Browser-looking UA: some platform APIs reject default Go clients.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var definitions = map[string]definition{
	"twitch":   {displayName: "Twitch", check: checkTwitch},
	"youtube":  {displayName: "YouTube", check: checkYouTube},
	"sooplive": {displayName: "SOOP Live", check: checkSooplive},
	"chzzk":    {displayName: "CHZZK", check: checkChzzk},
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// checkChzzk probes the CHZZK channel API: content.openLive is the live flag.
func checkChzzk(ctx context.Context, client *http.Client, streamerID string) (*StreamInfo, error) {
	var body struct {
		Content struct {
			OpenLive    bool   `json:"openLive"`
			ChannelName string `json:"channelName"`
		} `json:"content"`
	}
	u := "https://api.chzzk.naver.com/service/v1/channels/" + url.PathEscape(streamerID)
	if err := getJSON(ctx, client, u, &body); err != nil {
		return nil, err
	}
	name := body.Content.ChannelName
	if name == "" {
		name = streamerID
	}
	return &StreamInfo{
		StreamerID:   streamerID,
		StreamerName: name,
		IsLive:       body.Content.OpenLive,
	}, nil
}

// checkSooplive posts to the player live API; CHANNEL.RESULT 1 means live,
// -6 means a member-only broadcast that is still live.
func checkSooplive(ctx context.Context, client *http.Client, streamerID string) (*StreamInfo, error) {
	form := url.Values{
		"bid":         {streamerID},
		"quality":     {"original"},
		"type":        {"aid"},
		"pwd":         {""},
		"stream_type": {"common"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://live.sooplive.co.kr/afreeca/player_live_api.php",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	// JSON served with a text/html MIME type, so decode the raw body.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var body struct {
		Channel struct {
			Result int    `json:"RESULT"`
			BJNick string `json:"BJNICK"`
			Title  string `json:"TITLE"`
		} `json:"CHANNEL"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode live api: %w", err)
	}
	name := body.Channel.BJNick
	if name == "" {
		name = streamerID
	}
	return &StreamInfo{
		StreamerID:   streamerID,
		StreamerName: name,
		Title:        body.Channel.Title,
		IsLive:       body.Channel.Result == 1 || body.Channel.Result == -6,
	}, nil
}

// checkTwitch uses the Helix streams endpoint; needs TWITCH_CLIENT_ID and
// TWITCH_API_TOKEN in the environment.
func checkTwitch(ctx context.Context, client *http.Client, streamerID string) (*StreamInfo, error) {
	clientID := os.Getenv("TWITCH_CLIENT_ID")
	token := os.Getenv("TWITCH_API_TOKEN")
	if clientID == "" || token == "" {
		return nil, fmt.Errorf("twitch credentials not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.twitch.tv/helix/streams?user_login="+url.QueryEscape(streamerID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Data []struct {
			UserName    string `json:"user_name"`
			Title       string `json:"title"`
			ViewerCount int    `json:"viewer_count"`
			Type        string `json:"type"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	info := &StreamInfo{StreamerID: streamerID, StreamerName: streamerID}
	if len(body.Data) > 0 && body.Data[0].Type == "live" {
		info.IsLive = true
		info.StreamerName = body.Data[0].UserName
		info.Title = body.Data[0].Title
		info.ViewerCount = body.Data[0].ViewerCount
	}
	return info, nil
}

// checkYouTube fetches the channel's /live page and looks for the live
// marker. Coarse, but needs no API key.
func checkYouTube(ctx context.Context, client *http.Client, streamerID string) (*StreamInfo, error) {
	id := streamerID
	var liveURL string
	switch {
	case strings.HasPrefix(id, "UC"):
		liveURL = "https://www.youtube.com/channel/" + url.PathEscape(id) + "/live"
	case strings.HasPrefix(id, "@"):
		liveURL = "https://www.youtube.com/" + url.PathEscape(id) + "/live"
	default:
		liveURL = "https://www.youtube.com/@" + url.PathEscape(id) + "/live"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, liveURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	page := string(raw)
	return &StreamInfo{
		StreamerID:   streamerID,
		StreamerName: streamerID,
		IsLive:       strings.Contains(page, `"isLive":true`) || strings.Contains(page, `"isLiveNow":true`),
	}, nil
}
