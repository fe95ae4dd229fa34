package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/appointly-backend/internal/users"
)

const telegramKeySeed = "WebAppData"

var (
	// ErrInitDataInvalid means the init data is malformed or its hash does not match.
	ErrInitDataInvalid = errors.New("telegram init data invalid")
	// ErrInitDataExpired means auth_date is older than the allowed age.
	ErrInitDataExpired = errors.New("telegram init data expired")
)

type telegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

// InitDataVerifier checks the signed init data a Telegram mini-app hands to its backend.
type InitDataVerifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewInitDataVerifier derives the verification key from the bot token.
func NewInitDataVerifier(botToken string, maxAge time.Duration, now func() time.Time) (*InitDataVerifier, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if now == nil {
		now = time.Now
	}
	mac := hmac.New(sha256.New, []byte(telegramKeySeed))
	mac.Write([]byte(botToken))
	return &InitDataVerifier{secret: mac.Sum(nil), maxAge: maxAge, now: now}, nil
}

// Verify validates raw init data and returns the embedded user profile.
func (v *InitDataVerifier) Verify(raw string) (users.TelegramProfile, error) {
	values, err := url.ParseQuery(strings.TrimSpace(raw))
	if err != nil {
		return users.TelegramProfile{}, fmt.Errorf("%w: %v", ErrInitDataInvalid, err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return users.TelegramProfile{}, fmt.Errorf("%w: missing hash", ErrInitDataInvalid)
	}
	given, err := hex.DecodeString(hash)
	if err != nil {
		return users.TelegramProfile{}, fmt.Errorf("%w: malformed hash", ErrInitDataInvalid)
	}
	if !hmac.Equal(given, v.sign(values)) {
		return users.TelegramProfile{}, fmt.Errorf("%w: hash mismatch", ErrInitDataInvalid)
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return users.TelegramProfile{}, fmt.Errorf("%w: auth_date", ErrInitDataInvalid)
	}
	if v.maxAge > 0 && v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
		return users.TelegramProfile{}, ErrInitDataExpired
	}

	var tgUser telegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &tgUser); err != nil {
		return users.TelegramProfile{}, fmt.Errorf("%w: user: %v", ErrInitDataInvalid, err)
	}
	if tgUser.ID == 0 || strings.TrimSpace(tgUser.FirstName) == "" {
		return users.TelegramProfile{}, fmt.Errorf("%w: incomplete user", ErrInitDataInvalid)
	}
	return users.TelegramProfile{
		TelegramUserID: tgUser.ID,
		FirstName:      strings.TrimSpace(tgUser.FirstName),
		LastName:       strings.TrimSpace(tgUser.LastName),
		Username:       strings.TrimSpace(tgUser.Username),
		LanguageCode:   strings.TrimSpace(tgUser.LanguageCode),
	}, nil
}

// sign computes the HMAC over the sorted key=value lines, excluding hash.
func (v *InitDataVerifier) sign(values url.Values) []byte {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}
