// Package adapter reshapes one piece of authored content into a
// platform-ready variant. It performs no I/O.
package adapter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
)

const (
	// TweetLimit is the rendered length cap of a tweet
	TweetLimit = 280
	// TweetLinkWidth is the display width Twitter gives any shortened link
	TweetLinkWidth = 23
	tweetSeparator = 2
	ellipsis       = "..."

	// RedditTitleLimit is the number of characters kept in a derived title
	RedditTitleLimit = 100
)

const (
	markerLink      = "🔗"
	markerImage     = "🖼️"
	markerVideo     = "🎬"
	markerBroadcast = "📢"
)

var (
	urlPattern   = regexp.MustCompile(`https?://\S+`)
	imagePattern = regexp.MustCompile(`(?i)https?://\S+\.(?:jpg|jpeg|png|gif)`)
)

// Media is the caller-supplied media attached to a post
type Media struct {
	Images []string
	Videos []string
}

// Extracted is the result of link and image extraction
type Extracted struct {
	Text  string
	Link  string
	Image string
}

// Extract pulls the first image URL and then the first remaining URL out of
// content. Everything else stays in the text.
func Extract(content string) Extracted {
	var out Extracted

	if image := imagePattern.FindString(content); image != "" {
		out.Image = image
		content = strings.TrimSpace(strings.Replace(content, image, "", 1))
	}

	for _, l := range urlPattern.FindAllString(content, -1) {
		if out.Image != "" && l == out.Image {
			continue
		}
		out.Link = l
		content = strings.TrimSpace(strings.Replace(content, l, "", 1))
		break
	}

	out.Text = content
	return out
}

// Adapt produces the adapted variant of content for platform. Empty content
// is rejected with errs.ErrValidation. Any internal failure yields the
// original content tagged as unadapted instead of an error.
func Adapt(platform models.Platform, content string, media Media) (result models.AdaptedContent, err error) {
	if strings.TrimSpace(content) == "" {
		return models.AdaptedContent{}, fmt.Errorf("%w: content is required", errs.ErrValidation)
	}

	defer func() {
		if r := recover(); r != nil {
			result = Unadapted(platform, content, media)
			err = nil
		}
	}()

	ex := Extract(content)
	var video string
	if len(media.Videos) > 0 {
		video = media.Videos[0]
	}

	switch platform {
	case models.PlatformTwitter:
		result = adaptTwitter(ex, video)
	case models.PlatformTelegram:
		result = adaptTelegram(ex, video)
	case models.PlatformReddit:
		result = adaptReddit(ex, video)
	default:
		result = models.AdaptedContent{
			Content:     content,
			Hashtags:    []string{},
			Explanation: "No adaptation performed.",
			Link:        ex.Link,
			Image:       ex.Image,
			Video:       video,
		}
	}

	result.ID = uuid.NewString()
	result.Platform = platform
	result.Adapted = true
	result.PublishStatus = models.PublishPending
	return result, nil
}

// Unadapted returns the original content as-is for platform, flagged so the
// user can see no adaptation happened.
func Unadapted(platform models.Platform, content string, media Media) models.AdaptedContent {
	ac := models.AdaptedContent{
		ID:            uuid.NewString(),
		Platform:      platform,
		Content:       content,
		Hashtags:      []string{},
		Explanation:   "Adaptation failed; original content kept.",
		Adapted:       false,
		PublishStatus: models.PublishPending,
	}
	if len(media.Videos) > 0 {
		ac.Video = media.Videos[0]
	}
	return ac
}

func adaptTwitter(ex Extracted, video string) models.AdaptedContent {
	link := ex.Link
	budget := TweetLimit
	if link != "" {
		reserve := utf8.RuneCountInString(link)
		if reserve < TweetLinkWidth {
			reserve = TweetLinkWidth
		}
		budget = TweetLimit - reserve - tweetSeparator
		if budget < len(ellipsis) {
			// Link alone overflows the tweet; keep it as metadata only.
			link = ""
			budget = TweetLimit
		}
	}

	text := truncate(ex.Text, budget)
	final := text
	if link != "" {
		final = text + " " + link
	}

	return models.AdaptedContent{
		Content:     final,
		Hashtags:    []string{"social", "twitter"},
		Explanation: "Trimmed to 280 chars. Link shortened. Added hashtags.",
		Link:        ex.Link,
		Image:       ex.Image,
		Video:       video,
	}
}

func adaptTelegram(ex Extracted, video string) models.AdaptedContent {
	var b strings.Builder
	b.WriteString(ex.Text)
	if ex.Link != "" {
		fmt.Fprintf(&b, "\n%s %s", markerLink, ex.Link)
	}
	if ex.Image != "" {
		fmt.Fprintf(&b, "\n%s %s", markerImage, ex.Image)
	}
	if video != "" {
		fmt.Fprintf(&b, "\n%s %s", markerVideo, video)
	}
	b.WriteString(" " + markerBroadcast)

	return models.AdaptedContent{
		Content:     b.String(),
		Hashtags:    []string{"telegram", "broadcast"},
		Explanation: "Added emoji, link/image/video previews, and hashtags.",
		Link:        ex.Link,
		Image:       ex.Image,
		Video:       video,
	}
}

func adaptReddit(ex Extracted, video string) models.AdaptedContent {
	title := RedditTitle(ex.Text)

	var b strings.Builder
	if ex.Link != "" {
		fmt.Fprintf(&b, "[Link](%s)\n\n", ex.Link)
	}
	b.WriteString(ex.Text)
	if ex.Image != "" {
		fmt.Fprintf(&b, "\n\n![image](%s)", ex.Image)
	}
	if video != "" {
		fmt.Fprintf(&b, "\n\n[Video](%s)", video)
	}
	body := b.String()

	return models.AdaptedContent{
		Content:          body,
		Title:            title,
		FormattedContent: fmt.Sprintf("**%s**\n\n%s", title, body),
		Hashtags:         []string{"reddit", "discussion"},
		Explanation:      "Added Reddit formatting. Link, image, and video embedded in Markdown.",
		Link:             ex.Link,
		Image:            ex.Image,
		Video:            video,
	}
}

// RedditTitle derives a submission title from cleaned text
func RedditTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= RedditTitleLimit {
		return text
	}
	return string(runes[:RedditTitleLimit]) + ellipsis
}

// truncate cuts s to budget characters, ending in an ellipsis when cut
func truncate(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	keep := budget - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + ellipsis
}
