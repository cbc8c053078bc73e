package profile

import (
	"strings"

	"dyscraper/pkg/douyin"
	"dyscraper/pkg/models"
)

// Strategy extracts an account from a parsed page, reporting false when the
// page does not carry what it looks for
type Strategy struct {
	Name    string
	Extract func(*Document) (*models.Account, bool)
}

const (
	SourceRenderData  = "render-data"
	SourceGlobalState = "global-state"
	SourceURLOnly     = "url-only"
)

// RenderDataScriptID is the element id of the embedded page data block
const RenderDataScriptID = "RENDER_DATA"

// globalStateMarkers are the assignments that carry hydrated page state
var globalStateMarkers = []string{
	"window.__INIT_PROPS__",
	"window._SSR_HYDRATED_DATA",
	"window._ROUTER_DATA",
}

// globalStateDepth bounds the search for the user object in hydrated state
const globalStateDepth = 4

// DefaultStrategies returns the strategies in the order they are tried
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: SourceRenderData, Extract: FromRenderData},
		{Name: SourceGlobalState, Extract: FromGlobalState},
		{Name: SourceURLOnly, Extract: FromURL},
	}
}

// FromRenderData reads the RENDER_DATA block
func FromRenderData(doc *Document) (*models.Account, bool) {
	script, ok := doc.ScriptByID(RenderDataScriptID)
	if !ok {
		return nil, false
	}
	data, ok := decodeEmbedded(script.Content)
	if !ok {
		return nil, false
	}
	user, ok := douyin.FindUser(data)
	if !ok {
		return nil, false
	}
	return douyin.AccountFromUser(user)
}

// FromGlobalState scans every script for a global state assignment
func FromGlobalState(doc *Document) (*models.Account, bool) {
	for _, script := range doc.Scripts {
		for _, marker := range globalStateMarkers {
			idx := strings.Index(script.Content, marker)
			if idx < 0 {
				continue
			}
			eq := strings.IndexByte(script.Content[idx+len(marker):], '=')
			if eq < 0 {
				continue
			}
			raw, ok := extractObject(script.Content, idx+len(marker)+eq+1)
			if !ok {
				continue
			}
			data, ok := decodeObject([]byte(raw))
			if !ok {
				continue
			}
			if user, ok := douyin.FindUserDepth(data, globalStateDepth); ok {
				if acct, ok := douyin.AccountFromUser(user); ok {
					return acct, true
				}
			}
		}
	}
	return nil, false
}

// FromURL builds an identifier-only account. Counts are zero and Verified
// is false.
func FromURL(doc *Document) (*models.Account, bool) {
	if doc.AccountID == "" {
		return nil, false
	}
	return &models.Account{
		ID:       doc.AccountID,
		SecUID:   doc.AccountID,
		Verified: false,
		Degraded: true,
	}, true
}
