package extractor

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/ingestkit/internal/model"
)

// YoutubeExtractor fetches a video's caption track and turns it into
// fragments stamped with the caption's start timestamp, expressed as a
// synthetic page number (whole minutes into the video) since YouTube
// transcripts have no natural page concept. No transcript library exists
// in the reference stack, so this talks to YouTube's public endpoints
// directly.
type YoutubeExtractor struct {
	client *http.Client
}

func NewYoutubeExtractor(client *http.Client) *YoutubeExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &YoutubeExtractor{client: client}
}

func (e *YoutubeExtractor) Kind() model.JobKind { return model.JobYoutubeExtraction }

func (e *YoutubeExtractor) IsCPUBound() bool { return false }

var captionTrackPattern = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

type timedTextDoc struct {
	XMLName xml.Name   `xml:"transcript"`
	Texts   []timedTxt `xml:"text"`
}

type timedTxt struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Body  string `xml:",chardata"`
}

func (e *YoutubeExtractor) Extract(ctx context.Context, src Source) ([]Fragment, error) {
	videoID, err := videoIDFromURL(src.URL)
	if err != nil {
		return nil, err
	}

	trackURL, err := e.captionTrackURL(ctx, videoID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build caption request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch captions: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse captions xml: %w", err)
	}

	fragments := make([]Fragment, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		text := strings.TrimSpace(unescapeEntities(t.Body))
		if text == "" {
			continue
		}
		startSeconds, _ := strconv.ParseFloat(t.Start, 64)
		ts := int(startSeconds) / 60
		fragments = append(fragments, Fragment{Text: text, PageNumber: &ts})
	}
	return fragments, nil
}

// captionTrackURL fetches the watch page and pulls the first caption
// track's base URL out of the inlined player config.
func (e *YoutubeExtractor) captionTrackURL(ctx context.Context, videoID string) (string, error) {
	watchURL := "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
	if err != nil {
		return "", fmt.Errorf("build watch request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch watch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch watch page: status %d", resp.StatusCode)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read watch page: %w", err)
	}

	m := captionTrackPattern.FindSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("no caption tracks found for video %q", videoID)
	}
	// The matched JSON array has unescaped forward slashes only; a minimal
	// manual scan for "baseUrl":"..." avoids pulling in a JSON5-tolerant
	// parser just for this one field.
	baseURL, err := extractBaseURL(m[1])
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(baseURL, "\\u0026", "&"), nil
}

var baseURLPattern = regexp.MustCompile(`"baseUrl":"(.*?)"`)

func extractBaseURL(trackJSON []byte) (string, error) {
	m := baseURLPattern.FindSubmatch(trackJSON)
	if m == nil {
		return "", fmt.Errorf("caption track missing baseUrl")
	}
	return string(m[1]), nil
}

func videoIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse video url: %w", err)
	}
	if strings.Contains(u.Host, "youtu.be") {
		return strings.Trim(u.Path, "/"), nil
	}
	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("could not determine video id from %q", raw)
}

// unescapeEntities handles the small set of HTML entities YouTube
// transcripts actually emit, without pulling in a general HTML entity
// decoder.
func unescapeEntities(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&#39;", "'",
		"&quot;", `"`,
		"&lt;", "<",
		"&gt;", ">",
	)
	return replacer.Replace(s)
}
