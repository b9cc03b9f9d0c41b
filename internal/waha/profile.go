package waha

import (
	"context"
	"strings"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Profile is the public WhatsApp profile of a number. Fields the gateway
// could not provide are left nil.
type Profile struct {
	ChatID        string  `json:"chatId"`
	PushName      *string `json:"pushname,omitempty"`
	About         *string `json:"about,omitempty"`
	ProfilePicURL *string `json:"profilePicUrl,omitempty"`
	Error         string  `json:"error,omitempty"`
}

type pictureResponse struct {
	ProfilePictureURL string `json:"profilePictureURL"`
	URL               string `json:"url"`
}

type aboutResponse struct {
	About  string `json:"about"`
	Status string `json:"status"`
}

type contactResponse struct {
	PushName string `json:"pushname"`
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			value := v
			return &value
		}
	}
	return nil
}

// FetchProfile resolves rawPhone to a chat identifier and then reads the
// picture, about text and push name concurrently. A failed sub-read only
// leaves its field empty.
func (g *Gateway) FetchProfile(ctx context.Context, rawPhone string) Profile {
	if !g.Configured() {
		return Profile{Error: MsgNotConfigured}
	}
	digits := Digits(rawPhone)
	if digits == "" {
		return Profile{Error: MsgPhoneRequired}
	}

	reply, err := g.checkExists(ctx, digits)
	if err != nil || !reply.NumberExists || reply.ChatID == "" {
		if err != nil {
			g.logger.Warn("profile lookup could not resolve number", zap.Error(err))
		}
		return Profile{Error: MsgProfileAbsent}
	}

	chatID := reply.ChatID
	contact := map[string]string{"contactId": chatID}
	profile := Profile{ChatID: chatID}

	var wg conc.WaitGroup
	wg.Go(func() {
		var pic pictureResponse
		if err := g.get(ctx, "/api/contacts/profile-picture", contact, &pic); err != nil {
			g.logger.Debug("profile picture unavailable", zap.String("chat_id", chatID), zap.Error(err))
			return
		}
		profile.ProfilePicURL = firstNonEmpty(pic.ProfilePictureURL, pic.URL)
	})
	wg.Go(func() {
		var about aboutResponse
		if err := g.get(ctx, "/api/contacts/about", contact, &about); err != nil {
			g.logger.Debug("about text unavailable", zap.String("chat_id", chatID), zap.Error(err))
			return
		}
		profile.About = firstNonEmpty(about.About, about.Status)
	})
	wg.Go(func() {
		var info contactResponse
		if err := g.get(ctx, "/api/contacts", contact, &info); err != nil {
			g.logger.Debug("contact info unavailable", zap.String("chat_id", chatID), zap.Error(err))
			return
		}
		profile.PushName = firstNonEmpty(info.PushName)
	})
	// Each goroutine writes a distinct field.
	wg.WaitAndRecover()

	return profile
}
