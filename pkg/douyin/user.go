package douyin

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"dyscraper/pkg/models"
)

// Keys under which page state nests the profile object
var userContainerKeys = []string{"user", "userInfo", "profile"}

// Field aliases seen across page data revisions, in preference order
var (
	uidKeys       = []string{"uid", "user_id", "userId"}
	secUIDKeys    = []string{"secUid", "sec_uid", "sec_user_id"}
	nicknameKeys  = []string{"nickname", "nickName"}
	signatureKeys = []string{"signature", "desc"}
	followerKeys  = []string{"followerCount", "follower_count", "mplatformFollowersCount", "mplatform_followers_count"}
	followingKeys = []string{"followingCount", "following_count"}
	likedKeys     = []string{"totalFavorited", "total_favorited"}
)

// FindUser locates the profile object in decoded page state. The root and
// each of its top-level values are checked for a container key; a container
// that itself wraps a "user" object is descended once more.
func FindUser(root map[string]interface{}) (map[string]interface{}, bool) {
	return FindUserDepth(root, 1)
}

// FindUserDepth is FindUser searching depth levels below the root. Keys are
// visited in sorted order so the result is deterministic.
func FindUserDepth(obj map[string]interface{}, depth int) (map[string]interface{}, bool) {
	if u, ok := userIn(obj); ok {
		return u, true
	}
	if depth <= 0 {
		return nil, false
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		child, ok := obj[k].(map[string]interface{})
		if !ok {
			continue
		}
		if u, ok := FindUserDepth(child, depth-1); ok {
			return u, true
		}
	}
	return nil, false
}

func userIn(obj map[string]interface{}) (map[string]interface{}, bool) {
	for _, key := range userContainerKeys {
		u, ok := obj[key].(map[string]interface{})
		if !ok {
			continue
		}
		if inner, ok := u["user"].(map[string]interface{}); ok {
			u = inner
		}
		if hasIdentity(u) {
			return u, true
		}
	}
	return nil, false
}

func hasIdentity(u map[string]interface{}) bool {
	return str(u, uidKeys...) != "" || str(u, secUIDKeys...) != ""
}

// AccountFromUser maps a profile object onto an Account. It fails when the
// object carries neither a uid nor a sec uid.
func AccountFromUser(u map[string]interface{}) (*models.Account, bool) {
	if u == nil || !hasIdentity(u) {
		return nil, false
	}

	secUID := str(u, secUIDKeys...)
	id := str(u, uidKeys...)
	if id == "" {
		id = secUID
	}

	return &models.Account{
		ID:             id,
		SecUID:         secUID,
		DisplayName:    strings.TrimSpace(str(u, nicknameKeys...)),
		Signature:      str(u, signatureKeys...),
		FollowerCount:  num(u, followerKeys...),
		FollowingCount: num(u, followingKeys...),
		LikedCount:     num(u, likedKeys...),
		Verified:       true,
	}, true
}

func str(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func num(m map[string]interface{}, keys ...string) int64 {
	for _, key := range keys {
		switch v := m[key].(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
			if f, err := v.Float64(); err == nil {
				return int64(f)
			}
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
