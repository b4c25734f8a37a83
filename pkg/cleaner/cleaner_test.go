package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCleaner() *Cleaner {
	return New(Config{KeepTopQuoteHead: true})
}

func TestClean_PreservesCleanBody(t *testing.T) {
	c := newTestCleaner()
	body := "Hi team,\n\nThe deployment finished successfully.\nAll services are green.\n\nNext window is planned for Thursday."

	res := c.Clean(body, "Deployment status", nil)

	assert.False(t, res.IsAutoresponse)
	assert.Empty(t, res.Removed)
	assert.Equal(t, body, res.Text)
}

func TestClean_AutoresponseByHeader(t *testing.T) {
	c := newTestCleaner()
	res := c.Clean("I am out of the office.", "Re: budget",
		map[string]string{"auto-submitted": "auto-replied"})

	assert.True(t, res.IsAutoresponse)
	assert.Empty(t, res.Text)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, SpanAutoresponse, res.Removed[0].Type)
}

func TestClean_AutoresponseBySubject(t *testing.T) {
	c := newTestCleaner()
	for _, subject := range []string{
		"Automatic reply: Q3 budget",
		"Out of Office: vacation",
		"Undeliverable: status report",
		"Автоответ: планы на неделю",
	} {
		res := c.Clean("whatever body", subject, nil)
		assert.True(t, res.IsAutoresponse, "subject %q", subject)
	}
}

func TestClean_AutoresponseByShortRussianBody(t *testing.T) {
	c := newTestCleaner()
	res := c.Clean("Здравствуйте! Я сейчас в отпуске до 15 января. По срочным вопросам пишите на support@corp.example.", "Re: отчет", nil)
	assert.True(t, res.IsAutoresponse)
}

func TestClean_LongBodyWithOOOPhraseIsNotAutoresponse(t *testing.T) {
	c := newTestCleaner()
	body := "Please review the attached plan.\n" + strings.Repeat("Detail line about the project scope and milestones.\n", 40) +
		"By the way, I will be away next Monday."
	res := c.Clean(body, "Project plan", nil)
	assert.False(t, res.IsAutoresponse)
}

func TestClean_DisclaimerRemovedFromTail(t *testing.T) {
	c := newTestCleaner()
	body := "Please approve the Q3 budget by Friday.\n\nThanks!\n\n" +
		"CONFIDENTIALITY NOTICE: This e-mail and any attachments are confidential and intended solely for the addressee. If you are not the intended recipient, please notify the sender."

	res := c.Clean(body, "Q3 budget", nil)

	assert.Contains(t, res.Text, "approve the Q3 budget")
	assert.NotContains(t, res.Text, "CONFIDENTIALITY NOTICE")
	types := res.RemovedChars()
	assert.Greater(t, types[SpanDisclaimer], 0)
}

func TestClean_RussianDisclaimer(t *testing.T) {
	c := newTestCleaner()
	body := "Прошу согласовать договор до пятницы.\n\n" +
		"КОНФИДЕНЦИАЛЬНОСТЬ: Данное письмо и все вложения являются конфиденциальными и предназначены только для адресата."

	res := c.Clean(body, "Договор", nil)

	assert.Contains(t, res.Text, "согласовать договор")
	assert.NotContains(t, res.Text, "КОНФИДЕНЦИАЛЬНОСТЬ")
}

func TestClean_SignatureRemoved(t *testing.T) {
	tests := []struct {
		name string
		body string
		gone string
	}{
		{
			name: "english best regards",
			body: "The report is ready for review.\nLet me know if anything is missing.\n\nBest regards,\nAlice Johnson\nSenior Analyst",
			gone: "Alice Johnson",
		},
		{
			name: "sent from iphone",
			body: "Approved, go ahead with the rollout today.\n\nSent from my iPhone",
			gone: "Sent from my iPhone",
		},
		{
			name: "russian signature",
			body: "Отчет готов, можно отправлять заказчику сегодня.\n\nС уважением,\nИван Петров",
			gone: "Иван Петров",
		},
	}
	c := newTestCleaner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Clean(tt.body, "s", nil)
			assert.NotContains(t, res.Text, tt.gone)
			assert.Greater(t, res.RemovedChars()[SpanSignature], 0)
		})
	}
}

func replyHeavyBodyEN() string {
	reply := "Sounds good, let's proceed with option B."
	quoted := "-----Original Message-----\nFrom: carol@corp.example\nSent: Monday\nTo: team@corp.example\nSubject: Re: options\n\n" +
		strings.Repeat("> The previous discussion covered many details about both options and their cost implications.\n", 40)
	return reply + "\n\n" + quoted
}

func TestClean_ReplyHeavyEnglish(t *testing.T) {
	c := newTestCleaner()
	body := replyHeavyBodyEN()

	res := c.Clean(body, "Re: options", nil)

	assert.Contains(t, res.Text, "proceed with option B")
	removed := 0
	for _, s := range res.Removed {
		removed += s.End - s.Start
	}
	ratio := float64(removed) / float64(len(body))
	assert.GreaterOrEqual(t, ratio, 0.40, "removal ratio %f", ratio)
}

func TestClean_ReplyHeavyRussian(t *testing.T) {
	c := newTestCleaner()
	body := "Согласен, вариант Б подходит.\n\n" +
		"15.01.2024 в 10:32, Мария Иванова писала:\n" +
		strings.Repeat("> Предыдущее обсуждение охватывало детали обоих вариантов и их стоимость для проекта.\n", 40)

	res := c.Clean(body, "Re: варианты", nil)

	assert.Contains(t, res.Text, "вариант Б подходит")
	removed := 0
	for _, s := range res.Removed {
		removed += s.End - s.Start
	}
	assert.GreaterOrEqual(t, float64(removed)/float64(len(body)), 0.40)
}

func TestClean_KeepTopQuoteHead(t *testing.T) {
	c := newTestCleaner()
	body := "OK.\n\nOn Mon, Jan 15, 2024 at 9:00 AM Alice wrote:\n> Please approve the Q3 budget by Friday.\n> The finance team needs the sign-off.\n>\n> More historical context here.\n> And more.\n"

	res := c.Clean(body, "Re: budget", nil)

	// Reply is tiny, so the head of the quote is retained, unquoted.
	assert.Contains(t, res.Text, "OK.")
	assert.Contains(t, res.Text, "Please approve the Q3 budget by Friday.")
	assert.NotContains(t, res.Text, ">")
}

func TestClean_SafetyCapOnAllQuoteBody(t *testing.T) {
	c := newTestCleaner()
	body := strings.Repeat("> quoted line with nothing else in the message at all\n", 20)

	res := c.Clean(body, "fwd", nil)

	assert.True(t, res.SafetyCapTripped)
	assert.Equal(t, strings.TrimRight(body, " \t\n"), res.Text)
}

func TestClean_Idempotent(t *testing.T) {
	c := newTestCleaner()
	bodies := []string{
		replyHeavyBodyEN(),
		"OK.\n\nOn Mon, Jan 15, 2024 at 9:00 AM Alice wrote:\n> Please approve the Q3 budget by Friday.\n> The finance team needs the sign-off.\n",
		"The report is ready.\nDetails attached for review by the team.\n\nBest regards,\nAlice",
		"Прошу согласовать договор до пятницы, это блокирует запуск.\n\nС уважением,\nИван",
		"Plain body with no noise at all.\nSecond line.",
	}
	for _, body := range bodies {
		once := c.Clean(body, "s", nil)
		twice := c.Clean(once.Text, "s", nil)
		assert.Equal(t, once.Text, twice.Text, "not idempotent for %q", body[:min(40, len(body))])
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
