package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andredfaria/daily/internal/checklist"
	"github.com/andredfaria/daily/internal/notify"
	"github.com/andredfaria/daily/internal/policy"
	"github.com/andredfaria/daily/internal/store"
	"github.com/andredfaria/daily/internal/waha"
)

// ProfileView is the API form of a profile row.
type ProfileView struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Name         *string   `json:"name"`
	Title        *string   `json:"title"`
	Phone        *string   `json:"phone"`
	PhoneDisplay string    `json:"phone_display"`
	SendHour     *int      `json:"time_to_send"`
	Options      []string  `json:"option"`
	IdentityID   *string   `json:"auth_user_id"`
	IsAdmin      bool      `json:"is_admin"`
}

func viewProfile(p store.Profile) ProfileView {
	view := ProfileView{
		ID:         p.ID,
		CreatedAt:  p.CreatedAt,
		Name:       p.Name,
		Title:      p.Title,
		Phone:      p.Phone,
		SendHour:   p.SendHour,
		Options:    checklist.DecodeString(p.Options),
		IdentityID: p.IdentityID,
		IsAdmin:    p.IsAdmin,
	}
	if p.Phone != nil {
		view.PhoneDisplay = waha.DisplayPhone(*p.Phone)
	}
	return view
}

// ProfileInput is the body of create and update requests. Absent fields
// keep their stored value on update.
type ProfileInput struct {
	Name          *string         `json:"name"`
	Title         *string         `json:"title"`
	Phone         *string         `json:"phone"`
	SendTime      json.RawMessage `json:"time_to_send"`
	Options       []string        `json:"option"`
	ValidatePhone bool            `json:"validate_phone"`
}

// profileFields is the normalized, validated form of ProfileInput.
type profileFields struct {
	Name     *string  `json:"name" validate:"omitnil,profile_text"`
	Title    *string  `json:"title" validate:"omitnil,profile_text"`
	Phone    *string  `json:"phone" validate:"omitnil,profile_phone"`
	SendHour *int     `json:"time_to_send" validate:"omitnil,min=0,max=23"`
	Options  []string `json:"option" validate:"omitempty,dive,checklist_item"`
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// parseSendHour accepts an hour number, a numeric string or "HH:mm",
// which is truncated to the hour.
func parseSendHour(raw json.RawMessage) (*int, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, len(raw) != 0, nil
	}
	var number int
	if err := json.Unmarshal(raw, &number); err == nil {
		return &number, true, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, true, fmt.Errorf("time_to_send must be an hour")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, true, nil
	}
	if hour, _, found := strings.Cut(text, ":"); found {
		text = hour
	}
	hour, err := strconv.Atoi(text)
	if err != nil {
		return nil, true, fmt.Errorf("time_to_send must be an hour")
	}
	return &hour, true, nil
}

// normalize trims input and runs field validation. It returns per-field
// messages keyed by JSON name.
func normalizeProfileInput(in ProfileInput) (profileFields, bool, map[string]string) {
	fields := profileFields{
		Name:  trimmedOrNil(in.Name),
		Title: trimmedOrNil(in.Title),
		Phone: trimmedOrNil(in.Phone),
	}
	hour, hourSet, err := parseSendHour(in.SendTime)
	if err != nil {
		return fields, hourSet, map[string]string{"time_to_send": "Send time must be an hour between 0 and 23"}
	}
	fields.SendHour = hour
	if in.Options != nil {
		fields.Options = make([]string, len(in.Options))
		for i, item := range in.Options {
			fields.Options[i] = strings.TrimSpace(item)
		}
	}
	return fields, hourSet, validateFields(fields)
}

func (s *Service) ListProfiles(ctx context.Context, session Session) ([]ProfileView, error) {
	caller := session.Caller()
	if !caller.IsAdmin {
		if session.Profile == nil {
			return []ProfileView{}, nil
		}
		return []ProfileView{viewProfile(*session.Profile)}, nil
	}
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, viewProfile(p))
	}
	return views, nil
}

func (s *Service) loadProfile(ctx context.Context, id int64) (store.Profile, error) {
	profile, err := s.store.GetProfile(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, errNotFound(http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
	}
	return profile, err
}

func (s *Service) GetProfile(ctx context.Context, session Session, id int64) (ProfileView, error) {
	if !policy.Can(session.Caller(), policy.ActionView, id).Allowed {
		return ProfileView{}, errForbidden()
	}
	profile, err := s.loadProfile(ctx, id)
	if err != nil {
		return ProfileView{}, err
	}
	return viewProfile(profile), nil
}

func (s *Service) CreateProfile(ctx context.Context, session Session, in ProfileInput) (ProfileView, error) {
	if !policy.Can(session.Caller(), policy.ActionCreate, 0).Allowed {
		return ProfileView{}, errForbidden()
	}
	fields, _, problems := normalizeProfileInput(in)
	if len(fields.Options) == 0 && problems["option"] == "" {
		if problems == nil {
			problems = map[string]string{}
		}
		problems["option"] = "Add at least one checklist item"
	}
	if len(problems) > 0 {
		return ProfileView{}, errValidation(problems)
	}
	if err := s.resolvePhone(ctx, &fields, in.ValidatePhone); err != nil {
		return ProfileView{}, err
	}

	created, err := s.store.CreateProfile(ctx, store.ProfileFields{
		Name:     fields.Name,
		Title:    fields.Title,
		Phone:    fields.Phone,
		SendHour: fields.SendHour,
		Options:  checklist.Encode(fields.Options),
	})
	if err != nil {
		return ProfileView{}, err
	}

	s.notifyCreated(ctx, created)
	return viewProfile(created), nil
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, id int64, in ProfileInput) (ProfileView, error) {
	if !policy.CanEdit(session.Caller(), id).Allowed {
		return ProfileView{}, errForbidden()
	}
	current, err := s.loadProfile(ctx, id)
	if err != nil {
		return ProfileView{}, err
	}
	fields, hourSet, problems := normalizeProfileInput(in)
	if in.Options != nil && len(fields.Options) == 0 && problems["option"] == "" {
		if problems == nil {
			problems = map[string]string{}
		}
		problems["option"] = "Add at least one checklist item"
	}
	if len(problems) > 0 {
		return ProfileView{}, errValidation(problems)
	}
	if err := s.resolvePhone(ctx, &fields, in.ValidatePhone); err != nil {
		return ProfileView{}, err
	}

	next := store.ProfileFields{
		Name:     current.Name,
		Title:    current.Title,
		Phone:    current.Phone,
		SendHour: current.SendHour,
		Options:  current.Options,
	}
	if in.Name != nil {
		next.Name = fields.Name
	}
	if in.Title != nil {
		next.Title = fields.Title
	}
	if in.Phone != nil {
		next.Phone = fields.Phone
	}
	if hourSet {
		next.SendHour = fields.SendHour
	}
	if in.Options != nil {
		next.Options = checklist.Encode(fields.Options)
	}

	updated, err := s.store.UpdateProfile(ctx, id, next)
	if errors.Is(err, store.ErrNotFound) {
		return ProfileView{}, errNotFound(http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
	}
	if err != nil {
		return ProfileView{}, err
	}
	return viewProfile(updated), nil
}

func (s *Service) DeleteProfile(ctx context.Context, session Session, id int64) error {
	if !policy.Can(session.Caller(), policy.ActionDelete, id).Allowed {
		return errForbidden()
	}
	err := s.store.DeleteProfile(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errNotFound(http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found")
	}
	return err
}

// resolvePhone replaces the phone with the gateway's chat identifier when
// validation was requested.
func (s *Service) resolvePhone(ctx context.Context, fields *profileFields, requested bool) error {
	if !requested || fields.Phone == nil || waha.IsChatID(*fields.Phone) {
		return nil
	}
	result := s.phones.Validate(ctx, *fields.Phone)
	if !result.Exists {
		message := result.Error
		if message == "" {
			message = waha.MsgNotFound
		}
		return errValidation(map[string]string{"phone": message})
	}
	chatID := result.ChatID
	fields.Phone = &chatID
	return nil
}

func (s *Service) notifyCreated(ctx context.Context, p store.Profile) {
	event := notify.ProfileCreated{}
	if p.Title != nil {
		event.Title = *p.Title
	}
	if p.Phone != nil {
		event.Phone = *p.Phone
	}
	if p.Options != nil {
		event.Checklist = *p.Options
	}
	if p.SendHour != nil {
		event.SendTime = formatHour(*p.SendHour)
	}
	s.notifier.ProfileCreated(ctx, event)
}

func formatHour(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
