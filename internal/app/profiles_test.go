package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/andredfaria/daily/internal/waha"
)

func TestCreateProfileValidatesFields(t *testing.T) {
	env := newFixture()
	admin := env.session(t, "admin-id")

	_, err := env.svc.CreateProfile(context.Background(), admin, ProfileInput{
		Name:     strPtr("A"),
		Phone:    strPtr("0123"),
		SendTime: json.RawMessage(`24`),
		Options:  []string{"ok", "   "},
	})
	de := requireKind(t, err, KindBadInput)
	details, ok := de.Details.(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", de.Details)
	}
	for _, field := range []string{"name", "phone", "time_to_send", "option"} {
		if details[field] == "" {
			t.Fatalf("expected message for %s, got %v", field, details)
		}
	}
	if env.store.writeCount() != 0 {
		t.Fatal("invalid input must not write")
	}
}

func TestCreateProfileRequiresChecklist(t *testing.T) {
	env := newFixture()
	_, err := env.svc.CreateProfile(context.Background(), env.session(t, "admin-id"), ProfileInput{Name: strPtr("Someone")})
	de := requireKind(t, err, KindBadInput)
	if de.Details.(map[string]string)["option"] == "" {
		t.Fatalf("expected option message, got %v", de.Details)
	}
}

func TestCreateProfileStoresCanonicalChecklistAndNotifies(t *testing.T) {
	env := newFixture()
	view, err := env.svc.CreateProfile(context.Background(), env.session(t, "admin-id"), ProfileInput{
		Name:     strPtr("  Maria  "),
		Title:    strPtr("Morning routine"),
		Phone:    strPtr("+55 (11) 99999-9999"),
		SendTime: json.RawMessage(`"08:30"`),
		Options:  []string{" water ", "walk"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if *view.Name != "Maria" || *view.SendHour != 8 {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Options) != 2 || view.Options[0] != "water" {
		t.Fatalf("unexpected options %v", view.Options)
	}
	stored := env.store.profile(view.ID)
	if stored.Options == nil || *stored.Options != `["water","walk"]` {
		t.Fatalf("expected canonical JSON array, got %v", stored.Options)
	}

	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	if len(env.notifier.events) != 1 {
		t.Fatalf("expected one webhook event, got %d", len(env.notifier.events))
	}
	event := env.notifier.events[0]
	if event.Title != "Morning routine" || event.Checklist != `["water","walk"]` || event.SendTime != "08:00" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestCreateProfileIsAdminOnly(t *testing.T) {
	env := newFixture()
	_, err := env.svc.CreateProfile(context.Background(), env.session(t, "user-id"), ProfileInput{
		Name:    strPtr("Sneaky"),
		Options: []string{"x"},
	})
	requireKind(t, err, KindForbidden)
	if env.store.writeCount() != 0 {
		t.Fatal("forbidden create must not write")
	}
}

func TestCreateProfileResolvesPhoneThroughGateway(t *testing.T) {
	env := newFixture()
	env.phones.validateFn = func(_ context.Context, phone string) waha.Result {
		return waha.Result{IsValid: true, Exists: true, ValidatedPhone: "5511999999999", ChatID: "5511999999999@c.us"}
	}
	view, err := env.svc.CreateProfile(context.Background(), env.session(t, "admin-id"), ProfileInput{
		Phone:         strPtr("+5511999999999"),
		Options:       []string{"x"},
		ValidatePhone: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if *view.Phone != "5511999999999@c.us" || view.PhoneDisplay != "5511999999999" {
		t.Fatalf("expected canonical phone, got %+v", view)
	}
}

func TestCreateProfileRejectsUnknownWhatsAppNumber(t *testing.T) {
	env := newFixture()
	env.phones.validateFn = func(_ context.Context, phone string) waha.Result {
		return waha.Result{IsValid: true, Error: waha.MsgNotFound}
	}
	_, err := env.svc.CreateProfile(context.Background(), env.session(t, "admin-id"), ProfileInput{
		Phone:         strPtr("+5511999999999"),
		Options:       []string{"x"},
		ValidatePhone: true,
	})
	de := requireKind(t, err, KindBadInput)
	if de.Details.(map[string]string)["phone"] != waha.MsgNotFound {
		t.Fatalf("expected inline phone error, got %v", de.Details)
	}
}

func TestUpdateProfileMergesAbsentFields(t *testing.T) {
	env := newFixture()
	regular := env.session(t, "user-id")

	view, err := env.svc.UpdateProfile(context.Background(), regular, 2, ProfileInput{
		Title:    strPtr("Evening"),
		SendTime: json.RawMessage(`21`),
		Options:  []string{"read"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if *view.Name != "Regular" {
		t.Fatalf("absent name must be kept, got %v", view.Name)
	}
	if *view.Title != "Evening" || *view.SendHour != 21 {
		t.Fatalf("unexpected view %+v", view)
	}

	view, err = env.svc.UpdateProfile(context.Background(), regular, 2, ProfileInput{SendTime: json.RawMessage(`null`)})
	if err != nil {
		t.Fatal(err)
	}
	if view.SendHour != nil || len(view.Options) != 1 {
		t.Fatalf("null must clear the hour and keep options, got %+v", view)
	}
}

func TestUpdateProfileGuard(t *testing.T) {
	env := newFixture()
	_, err := env.svc.UpdateProfile(context.Background(), env.session(t, "user-id"), 3, ProfileInput{Name: strPtr("Mine now")})
	requireKind(t, err, KindForbidden)

	_, err = env.svc.UpdateProfile(context.Background(), env.session(t, "admin-id"), 99, ProfileInput{Name: strPtr("Ghost")})
	requireKind(t, err, KindNotFound)
}

func TestListProfilesScopesNonAdmins(t *testing.T) {
	env := newFixture()
	ctx := context.Background()

	all, err := env.svc.ListProfiles(ctx, env.session(t, "admin-id"))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != 3 {
		t.Fatalf("expected all profiles newest first, got %+v", all)
	}

	own, err := env.svc.ListProfiles(ctx, env.session(t, "user-id"))
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].ID != 2 {
		t.Fatalf("expected only own profile, got %+v", own)
	}

	none, err := env.svc.ListProfiles(ctx, env.session(t, "free-id"))
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no profiles, got %+v", none)
	}
}

func TestDeleteProfile(t *testing.T) {
	env := newFixture()
	ctx := context.Background()

	err := env.svc.DeleteProfile(ctx, env.session(t, "user-id"), 2)
	requireKind(t, err, KindForbidden)

	if err := env.svc.DeleteProfile(ctx, env.session(t, "admin-id"), 3); err != nil {
		t.Fatal(err)
	}
	err = env.svc.DeleteProfile(ctx, env.session(t, "admin-id"), 3)
	requireKind(t, err, KindNotFound)
}

func TestParseSendHour(t *testing.T) {
	cases := []struct {
		raw     string
		want    *int
		set     bool
		wantErr bool
	}{
		{raw: ``, want: nil, set: false},
		{raw: `null`, want: nil, set: true},
		{raw: `7`, want: intPtr(7), set: true},
		{raw: `"7"`, want: intPtr(7), set: true},
		{raw: `"19:45"`, want: intPtr(19), set: true},
		{raw: `""`, want: nil, set: true},
		{raw: `"soon"`, set: true, wantErr: true},
		{raw: `true`, set: true, wantErr: true},
	}
	for _, tc := range cases {
		got, set, err := parseSendHour(json.RawMessage(tc.raw))
		if (err != nil) != tc.wantErr || set != tc.set {
			t.Fatalf("parseSendHour(%s) = %v, %v, %v", tc.raw, got, set, err)
		}
		if tc.want == nil && got != nil || tc.want != nil && (got == nil || *got != *tc.want) {
			t.Fatalf("parseSendHour(%s) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	for phone, want := range map[string]bool{
		"+55 (11) 99999-9999": true,
		"5511999999999@c.us":  true,
		"11999999":            false,
		"0551199999999":       false,
		"55119999999991234":   false,
		"55-11-abc-9999":      false,
	} {
		if got := validPhone(phone); got != want {
			t.Fatalf("validPhone(%q) = %v, want %v", phone, got, want)
		}
	}
}
