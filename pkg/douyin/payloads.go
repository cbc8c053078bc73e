package douyin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dyscraper/pkg/models"
)

// ListingResponse is the top-level listing payload
type ListingResponse struct {
	StatusCode int     `json:"status_code"`
	StatusMsg  string  `json:"status_msg"`
	AwemeList  []Aweme `json:"aweme_list"`
	HasMore    Flag    `json:"has_more"`
	MaxCursor  Token   `json:"max_cursor"`
}

// Aweme is one post in a listing page
type Aweme struct {
	AwemeID    Token      `json:"aweme_id"`
	Desc       string     `json:"desc"`
	CreateTime int64      `json:"create_time"`
	Video      Video      `json:"video"`
	Statistics Statistics `json:"statistics"`
}

// Video holds the asset addresses of a post
type Video struct {
	Cover    URLList `json:"cover"`
	PlayAddr URLList `json:"play_addr"`
}

// URLList is a list of equivalent CDN addresses
type URLList struct {
	URLList []string `json:"url_list"`
}

// First returns the first non-empty address
func (l URLList) First() string {
	for _, u := range l.URLList {
		if u != "" {
			return u
		}
	}
	return ""
}

// Statistics are the engagement counters of a post
type Statistics struct {
	CommentCount int64 `json:"comment_count"`
	DiggCount    int64 `json:"digg_count"`
	ShareCount   int64 `json:"share_count"`
}

// ToContentItem maps a raw post onto the domain type
func (a Aweme) ToContentItem() models.ContentItem {
	return models.ContentItem{
		ID:           string(a.AwemeID),
		Title:        strings.TrimSpace(a.Desc),
		ThumbnailURL: a.Video.Cover.First(),
		PlayURL:      a.Video.PlayAddr.First(),
		CreatedAt:    a.CreateTime,
		Stats: models.Stats{
			Comments: a.Statistics.CommentCount,
			Likes:    a.Statistics.DiggCount,
			Shares:   a.Statistics.ShareCount,
		},
	}
}

// Items maps every post that carries an id
func (r *ListingResponse) Items() []models.ContentItem {
	items := make([]models.ContentItem, 0, len(r.AwemeList))
	for _, a := range r.AwemeList {
		if a.AwemeID == "" {
			continue
		}
		items = append(items, a.ToContentItem())
	}
	return items
}

// Flag decodes booleans the upstream sends as true/false, 0/1 or "1"
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	switch s {
	case "", "null", "false", "0":
		*f = false
	case "true":
		*f = true
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid flag value %s", data)
		}
		*f = n != 0
	}
	return nil
}

// Token decodes identifiers the upstream sends either as strings or as
// numbers, keeping the digits exactly
type Token string

func (t *Token) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Token(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Token(n.String())
	return nil
}

// Cursor converts the token to a listing cursor
func (t Token) Cursor() models.Cursor {
	return models.Cursor(t)
}
