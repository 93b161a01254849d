package prompts

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed router.md
var routerPromptTemplate string

//go:embed decompose.md
var decomposePrompt string

//go:embed sql.md
var sqlPromptTemplate string

//go:embed weather_location.md
var weatherLocationPrompt string

//go:embed weather_analysis.md
var weatherAnalysisTemplate string

//go:embed document.md
var documentPrompt string

//go:embed vision_intent.md
var visionIntentTemplate string

//go:embed manual.md
var careManual string

// AgentInfo is one entry of the router's agent table.
type AgentInfo struct {
	Name        string
	Description string
}

// GetRouterPrompt returns the router system prompt listing the registered agents
func GetRouterPrompt(agents []AgentInfo) string {
	var list strings.Builder
	names := make([]string, len(agents))
	for i, a := range agents {
		fmt.Fprintf(&list, "- %s: %s\n", a.Name, a.Description)
		names[i] = a.Name
	}

	prompt := strings.Replace(routerPromptTemplate, "{{AGENTS}}", strings.TrimRight(list.String(), "\n"), 1)
	return strings.Replace(prompt, "{{AGENT_NAMES}}", strings.Join(names, ", "), 1)
}

func RouterUser(query string) string {
	return fmt.Sprintf("Select agents for this farm management query: \"%s\"\n\nReturn JSON array of agent names.", query)
}

func GetDecomposePrompt() string {
	return decomposePrompt
}

func DecomposeUser(query, agentName string) string {
	return fmt.Sprintf("Original query: \"%s\"\nAgent: %s\n\nDecompose this query for the %s agent:", query, agentName, agentName)
}

// GetSQLPrompt injects the schema and relationship listings. relationships
// may be empty, in which case the section is omitted.
func GetSQLPrompt(dialect string, schemaLines, relationshipLines []string) string {
	prompt := strings.ReplaceAll(sqlPromptTemplate, "{{DIALECT}}", dialect)
	prompt = strings.Replace(prompt, "{{SCHEMA}}", strings.Join(schemaLines, "\n"), 1)

	section := ""
	if len(relationshipLines) > 0 {
		section = "Table Relationships:\n" + strings.Join(relationshipLines, "\n") + "\n\n"
	}
	return strings.Replace(prompt, "{{RELATIONSHIPS}}", section, 1)
}

func GetWeatherLocationPrompt() string {
	return weatherLocationPrompt
}

// WeatherFigures are the numbers embedded in the analysis prompt.
type WeatherFigures struct {
	Temperature int
	FeelsLike   int
	Unit        string
	Humidity    int
	Conditions  string
	Wind        int
	WindUnit    string
}

func GetWeatherAnalysisPrompt(f WeatherFigures) string {
	r := strings.NewReplacer(
		"{{TEMPERATURE}}", fmt.Sprint(f.Temperature),
		"{{FEELS_LIKE}}", fmt.Sprint(f.FeelsLike),
		"{{UNIT}}", f.Unit,
		"{{HUMIDITY}}", fmt.Sprint(f.Humidity),
		"{{CONDITIONS}}", f.Conditions,
		"{{WIND}}", fmt.Sprint(f.Wind),
		"{{WIND_UNIT}}", f.WindUnit,
	)
	return r.Replace(weatherAnalysisTemplate)
}

func WeatherAnalysisUser(query string) string {
	return fmt.Sprintf("Weather query: \"%s\"\n\nWhat should rabbit farmers know about these conditions?", query)
}

func GetDocumentPrompt() string {
	return documentPrompt
}

func DocumentUser(query, content string) string {
	return fmt.Sprintf(`Based on the following rabbit care manual content, please answer this question: "%s"

RABBIT CARE MANUAL CONTENT:
%s

Question: %s

Please provide a detailed, practical answer based on the manual content above. If the manual doesn't contain specific information to answer the question, please state that clearly.`, query, content, query)
}

// CareManual is the built-in rabbit care knowledge.
func CareManual() string {
	return careManual
}

func GetVisionIntentPrompt(eventTypes, severities []string) string {
	prompt := strings.Replace(visionIntentTemplate, "{{EVENT_TYPES}}", strings.Join(eventTypes, ","), 1)
	return strings.Replace(prompt, "{{SEVERITIES}}", strings.Join(severities, ","), 1)
}
