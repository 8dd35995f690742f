package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "LectureQuiz AI" {
		t.Errorf("T(AppTitle) = %q, want 'LectureQuiz AI'", got)
	}
	if got := T(ctx, "StageTranscription"); got != "Transcribing Audio" {
		t.Errorf("T(StageTranscription) = %q, want 'Transcribing Audio'", got)
	}
	if got := T(ctx, "InvalidMediaType"); got != "Please upload an MP4 video file" {
		t.Errorf("T(InvalidMediaType) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "CheckAnswers"); got != "Проверить ответы" {
		t.Errorf("T(CheckAnswers) = %q, want 'Проверить ответы'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "SegmentsCount", 1); got != "1 segment" {
		t.Errorf("Tp(SegmentsCount, 1) = %q, want '1 segment'", got)
	}
	if got := Tp(ctx, "SegmentsCount", 5); got != "5 segments" {
		t.Errorf("Tp(SegmentsCount, 5) = %q, want '5 segments'", got)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "QuestionsCount", 3); got != "3 вопроса" {
		t.Errorf("Tp(QuestionsCount, 3) ru = %q, want '3 вопроса'", got)
	}
	if got := Tp(ru, "QuestionsCount", 5); got != "5 вопросов" {
		t.Errorf("Tp(QuestionsCount, 5) ru = %q, want '5 вопросов'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuizScore", map[string]any{"Correct": 2, "Total": 3})
	if got != "You got 2 out of 3 correct!" {
		t.Errorf("Td(QuizScore) = %q", got)
	}
	got = Td(ctx, "ProcessingStarted", map[string]any{"Name": "week1.mp4"})
	if got != "Processing week1.mp4" {
		t.Errorf("Td(ProcessingStarted) = %q", got)
	}
	if got := Td(ctx, "ProcessingFailed", nil); got != "Failed to process video" {
		t.Errorf("Td(ProcessingFailed, nil) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	initLang(t, "en")
	en := WithLocalizer(context.Background(), NewLocalizer("en"))
	ru := WithLocalizer(context.Background(), NewLocalizer("ru"))
	for _, id := range []string{"AppTitle", "StageUpload", "StageComplete", "QuizScore", "LoggedOut", "DashboardEmpty"} {
		if T(en, id) == id {
			t.Errorf("en missing %s", id)
		}
		if T(ru, id) == id {
			t.Errorf("ru missing %s", id)
		}
	}
}

func TestMatch(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		prefs []string
		want  string
	}{
		{nil, "en"},
		{[]string{"ru"}, "ru"},
		{[]string{"", "", "ru-RU,ru;q=0.9,en;q=0.8"}, "ru"},
		{[]string{"de"}, "en"},
		{[]string{"not a tag!!"}, "en"},
	}
	for _, tt := range tests {
		if got := Match(tt.prefs...); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.prefs, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var title string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = T(r.Context(), "TabResults")
	}))

	req := httptest.NewRequest(http.MethodGet, "/?lang=ru", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if title != "Результаты" {
		t.Errorf("?lang=ru title = %q", title)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != LangCookie || cookies[0].Value != "ru" {
		t.Errorf("expected lang cookie, got %v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: LangCookie, Value: "ru"})
	req.Header.Set("Accept-Language", "en-US")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if title != "Результаты" {
		t.Errorf("cookie title = %q", title)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "fr-FR")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if title != "Results" {
		t.Errorf("fallback title = %q", title)
	}
}
