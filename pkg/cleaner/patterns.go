// Package cleaner strips autoresponses, legal disclaimers, signatures, and
// quoted history from normalized email bodies. Four ordered removal stages,
// each recording removed spans as transient diagnostics. English and Russian
// corporate mail are both covered.
package cleaner

import "regexp"

// Patterns are compiled once at package init. Every pattern is matched
// case-insensitively; Russian patterns rely on Unicode case folding.
var (
	// Stage 1: autoresponses. Subject patterns catch out-of-office and
	// delivery notifications; body patterns confirm when the subject is
	// inconclusive.
	autoSubjectPattern = regexp.MustCompile(`(?i)^\s*(?:automatic reply|auto[- ]?reply|out of office|delivery status notification|undeliverable|mail delivery (?:failed|subsystem)|автоответ|автоматический ответ|недоставлено|\[автоответ\])`)

	autoBodyPattern = regexp.MustCompile(`(?i)(?:i am (?:currently )?out of (?:the )?office|i will be (?:away|out of office)|your message could not be delivered|delivery to the following recipients? failed|this is an automatic(?:ally generated)? (?:reply|response|message)|я (?:сейчас )?в отпуске|меня нет на (?:месте|рабочем месте)|нахожусь в отпуске|это автоматическ(?:ий ответ|ое сообщение)|ваше сообщение не (?:было )?доставлено)`)

	// Stage 2: legal disclaimers and unsubscribe blocks, matched against
	// the tail of the message only.
	disclaimerPattern = regexp.MustCompile(`(?im)^[^\n]{0,40}(?:confidentiality notice|confidential(?:ity)? (?:notice|statement)|this (?:e-?mail|message)(?:,? (?:and|including) (?:any|its) attachments?,?)? (?:is|are|may (?:be|contain))|if you (?:are not the intended recipient|have received this (?:e-?mail|message) in error)|please consider the environment|to unsubscribe|unsubscribe (?:here|from)|privacy policy|конфиденциальност|данное (?:письмо|сообщение) (?:и все вложения |может содержать )?|если вы не являетесь|чтобы отписаться|отписаться от рассылки|политик[а-яё]+ конфиденциальности)`)

	// Stage 3: signatures, anchored to a paragraph boundary.
	signaturePattern = regexp.MustCompile(`(?im)^(?:--\s*$|best regards|kind regards|warm regards|best wishes|regards,|thanks(?: and regards)?,\s*$|cheers,|sincerely,|sent from my (?:iphone|ipad|android|mobile)|с уважением|с наилучшими пожеланиями|всего доброго|всего хорошего|отправлено с (?:iphone|ipad|мобильного))`)

	// Stage 4: quoted history.
	originalMessagePattern = regexp.MustCompile(`(?im)^-{3,}\s*(?:original message|forwarded message|пересылаемое сообщение|исходное сообщение)\s*-{3,}\s*$`)

	// Outlook-style top-posted header block: From:/Sent:/To:/Subject: run.
	quoteHeaderPattern = regexp.MustCompile(`(?im)^(?:from|от(?: кого)?):\s.*$`)

	// "On <date>, <someone> wrote:" and Russian equivalents.
	onWrotePattern = regexp.MustCompile(`(?im)^(?:on .{0,120}wrote:|\d{1,2}[./]\d{1,2}[./]\d{2,4}.{0,120}(?:писал(?:а)?|пишет)(?:\(а\))?:?)\s*$`)

	quoteLinePattern = regexp.MustCompile(`^\s*>`)
)

// autoHeaders are transport headers that mark machine-generated mail.
// Keys are lower-cased; an empty value set means any value counts.
var autoHeaders = map[string][]string{
	"auto-submitted":      {"auto-replied", "auto-generated"},
	"x-autoreply":         nil,
	"x-autorespond":       nil,
	"precedence":          {"auto_reply", "bulk", "junk"},
	"x-failed-recipients": nil,
}

// isAutoHeader reports whether the header set marks an autoresponse.
func isAutoHeader(headers map[string]string) bool {
	for key, accepted := range autoHeaders {
		val, ok := headers[key]
		if !ok {
			continue
		}
		if accepted == nil {
			return true
		}
		for _, a := range accepted {
			if val == a {
				return true
			}
		}
	}
	return false
}
