package enrichment

import "fmt"

const systemPrompt = "You are a project planning assistant. Answer with a single JSON object and no other text."

func insightsPrompt(description string) string {
	return fmt.Sprintf(`Analyze the following task and provide insights in JSON format:
Task: %s

Provide response as JSON with these fields (use numbers where applicable):
- estimated_hours: estimated hours to complete (float 0.5-100)
- complexity_score: 1-5 scale
- recommended_approach: brief approach string
- potential_blockers: list of 2-3 potential issues
- suggested_resources: list of 2-3 helpful resources
- confidence_score: 0.5-0.95 confidence in estimate`, description)
}

func recommendationsPrompt(summary string) string {
	return fmt.Sprintf(`Here is a summary of a user's task list:
%s

Respond with JSON containing these fields:
- focus_areas: list of 2-3 areas to focus on
- quick_wins: list of 2-3 tasks or habits that pay off quickly
- risk_alerts: list of 1-3 risks worth watching
- optimization_tips: list of 2-3 workflow improvements
- efficiency_score: number from 0 to 100`, summary)
}
