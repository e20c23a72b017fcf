package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/mtlfinder/voyago/internal/domain"
)

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	Now          time.Time
	UserLocation *domain.Location
	ExtraPrompt  string
}

// BuildSystemPrompt constructs the system prompt for the model.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	b.WriteString("You are a friendly and knowledgeable travel assistant for Montreal, Quebec, Canada. ")
	b.WriteString("You help visitors and locals plan trips, check the weather, and navigate the city ")
	b.WriteString("using the STM metro and bus network, the REM, BIXI bike-share, and walking.\n\n")

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	b.WriteString(fmt.Sprintf("Current date: %s\n", now.Format("2006-01-02")))
	if cfg.UserLocation != nil {
		b.WriteString(fmt.Sprintf("User's reported location: latitude %v, longitude %v\n",
			cfg.UserLocation.Latitude, cfg.UserLocation.Longitude))
	}
	b.WriteString("\n")

	b.WriteString("Guidelines:\n")
	b.WriteString("- ALWAYS use geocode_location to resolve place names to coordinates before planning a trip. NEVER guess or invent coordinates.\n")
	b.WriteString("- NEVER invent route numbers, departure times, or station names. Only report what the tools return.\n")
	b.WriteString("- Before recommending a metro or bus itinerary, check get_stm_alerts for disruptions.\n")
	b.WriteString("- Before recommending walking or BIXI, check get_weather at the destination.\n")
	b.WriteString("- Use get_current_datetime to resolve relative times like 'tomorrow at 9' before planning.\n")
	b.WriteString("- When the user's location is known, use it as the trip origin unless they name one.\n")
	b.WriteString("- Present itineraries clearly: total duration, departure and arrival times, then each leg.\n")
	b.WriteString("- If a tool fails, say what you could not check and answer with what you have.\n")
	b.WriteString("- Keep answers concise and conversational. Respond in the user's language (English or French).\n")

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
