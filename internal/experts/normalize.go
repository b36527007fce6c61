package experts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxQueryBytes is the input-sanitization ceiling from §4.C/§5.
const MaxQueryBytes = 8 * 1024

// Sanitize truncates query to MaxQueryBytes and trims surrounding
// whitespace; experts must apply this uniformly before matching or
// executing.
func Sanitize(query string) string {
	q := strings.TrimSpace(query)
	if len(q) > MaxQueryBytes {
		q = q[:MaxQueryBytes]
	}
	return q
}

var deviceSlugInvalid = regexp.MustCompile(`[^a-z0-9_]+`)

// SlugifyDevice turns a free-text device name into `[a-z0-9_]+` for the
// `domain.slug` entity ID scheme (§4.C).
func SlugifyDevice(name string) string {
	lc := strings.ToLower(strings.TrimSpace(name))
	lc = strings.ReplaceAll(lc, " ", "_")
	lc = deviceSlugInvalid.ReplaceAllString(lc, "")
	lc = strings.Trim(lc, "_")
	return lc
}

var (
	reHHMM     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reHHMMAMPM = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?$`)
	reBareHour = regexp.MustCompile(`(?i)^(\d{1,2})\s*([ap])\.?m\.?$`)
	reTomorrow = regexp.MustCompile(`(?i)tomorrow\s*(\d{1,2})?`)
)

// NormalizeTime implements §4.C's time-normalization edge cases: "3pm",
// "3 pm", "15:00", "3:30pm", "morning" (09:00), "evening" (19:00),
// "tomorrow 9" -> (date, HH:MM:SS). now is the reference instant in the
// user's timezone (UTC if unknown, per hints.Location).
func NormalizeTime(text string, now time.Time) (date string, clock string, ok bool) {
	t := strings.ToLower(strings.TrimSpace(text))

	switch t {
	case "morning":
		return now.Format("2006-01-02"), "09:00:00", true
	case "evening":
		return now.Format("2006-01-02"), "19:00:00", true
	case "noon":
		return now.Format("2006-01-02"), "12:00:00", true
	}

	if m := reTomorrow.FindStringSubmatch(t); m != nil {
		tomorrow := now.AddDate(0, 0, 1)
		hour := 9
		if m[1] != "" {
			if h, err := strconv.Atoi(m[1]); err == nil {
				hour = h
			}
		}
		return tomorrow.Format("2006-01-02"), clockFromHour(hour, 0), true
	}

	if m := reHHMM.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h < 24 && min < 60 {
			return now.Format("2006-01-02"), clockFromHour(h, min), true
		}
	}

	if m := reHHMMAMPM.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		h = to24Hour(h, m[3])
		return now.Format("2006-01-02"), clockFromHour(h, min), true
	}

	if m := reBareHour.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		h = to24Hour(h, m[2])
		return now.Format("2006-01-02"), clockFromHour(h, 0), true
	}

	return "", "", false
}

func to24Hour(h int, meridiem string) int {
	switch strings.ToLower(meridiem) {
	case "p":
		if h != 12 {
			h += 12
		}
	case "a":
		if h == 12 {
			h = 0
		}
	}
	return h
}

func clockFromHour(h, m int) string {
	return fmt.Sprintf("%02d:%02d:00", h, m)
}

var (
	reDayWord     = regexp.MustCompile(`(?i)\btomorrow\b`)
	reClockPhrase = regexp.MustCompile(`(?i)(\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?|\d{1,2}:\d{2}|morning|evening|noon)`)
)

// ResolveTimePhrase finds a day word ("tomorrow") and a clock phrase
// ("2pm", "14:00", "morning", ...) anywhere in text and combines them,
// rather than taking whichever phrase happens to appear first in the
// string. A single-alternative regex over the whole phrase space picks
// its leftmost match — for "remind me ... tomorrow at 2pm" that is
// "tomorrow", silently dropping "2pm" and defaulting to 09:00. Resolving
// the day and clock parts independently and combining them fixes that.
func ResolveTimePhrase(text string, now time.Time) (date string, clock string, ok bool) {
	base := now
	if reDayWord.MatchString(text) {
		base = now.AddDate(0, 0, 1)
		ok = true
	}
	date = base.Format("2006-01-02")
	clock = "09:00:00"

	if m := reClockPhrase.FindString(text); m != "" {
		if _, c, match := NormalizeTime(m, base); match {
			clock = c
			ok = true
		}
	}
	return date, clock, ok
}
