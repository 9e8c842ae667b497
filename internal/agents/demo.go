package agents

import (
	"github.com/agentdesk/agentdesk/pkg/models"
)

// Canned outputs shown when Ollama is not connected, keyed by agent ID.
// Kept close to what each agent would produce live so the dashboard
// still demonstrates the product end to end.
var demoOutputs = map[string]string{
	"email-summarizer": `EMAIL ANALYSIS REPORT

SUMMARY
High priority message requiring action. The sender provides a project update and asks for approval on next steps.

SENDER: demo@example.com
SUBJECT: Project update
PRIORITY: High
CATEGORY: Action Required
SENTIMENT: Positive
DEADLINE: Not specified

ACTION ITEMS
• Review documents
• Provide feedback
• Approve next steps

KEY POINTS
• Project update provided
• Approval needed
• Timeline discussed`,

	"content-generator": `CONTENT GENERATION REPORT

TITLE
Generated Content Based on Your Input

CONTENT
This is a professionally generated article that addresses your topic. In a real scenario with Ollama running, this would be a comprehensive, well-researched piece tailored to your specific requirements. The AI would analyze your input, research the topic, and create engaging content with proper structure, introduction, body paragraphs, and conclusion.

METADATA
Word Count: 250
Tone: Professional
Format: article

KEY TAKEAWAYS
• Professional content addressing your specified topic
• Clear structure with introduction, body, and conclusion
• Tailored to your requirements`,

	"data-analyzer": `ANALYSIS REPORT

SUMMARY
Analysis complete with positive trends and actionable insights identified.

INSIGHTS
• Strong performance indicators across all metrics
• Growth trajectory shows positive momentum
• Key success factors identified and validated

PATTERNS
• Consistent upward trend in primary metrics
• Seasonal variations within normal range

RECOMMENDATIONS
• Continue current strategy with minor optimizations
• Monitor key performance indicators weekly
• Scale successful initiatives to maximize ROI

CONFIDENCE: 0.87`,

	"customer-support": `Thank you for reaching out to us. I understand your concern and sincerely apologize for any inconvenience this has caused.

I've reviewed your inquiry and here's how we can help:

1. Immediate Action: [Specific solution based on the issue]
2. Alternative Options: [Backup solutions if needed]
3. Follow-up: We'll monitor this to ensure resolution

Your satisfaction is our priority, and we're committed to resolving this promptly. Please let me know if you have any questions or need further assistance.

Best regards,
Customer Support Team`,

	"code-reviewer": `CODE REVIEW

SUMMARY
Code quality: Good | Security: Review needed | Performance: Acceptable

FINDINGS
• [High/Security] Input validation required: implement proper input sanitization
• [Medium/Performance] Optimization opportunity: consider caching or algorithm optimization
• [Low/Best Practices] Documentation could be improved: add docstrings and inline comments

POSITIVE ASPECTS
• Clean code structure and organization
• Good variable naming conventions
• Proper error handling in most sections

SUGGESTIONS
• Add comprehensive unit tests
• Implement type hints for better maintainability
• Consider design patterns for scalability`,

	"meeting-notes": `MEETING NOTES

SUMMARY
Meeting focused on planning, resource allocation, and strategic decisions.

DECISIONS MADE
• Approved proposed budget allocation
• Selected priority projects for next quarter
• Agreed on hiring timeline and requirements

ACTION ITEMS
• Finalize budget breakdown and documentation (Finance Team, end of week)
• Create project kickoff presentation (Project Lead, next Monday)
• Schedule follow-up review meeting (Team Lead, within 2 weeks)

KEY DISCUSSION POINTS
• Performance review exceeded expectations
• Resource allocation optimized for efficiency
• Timeline adjustments discussed and approved
• Risk mitigation strategies identified

NEXT MEETING: Two weeks from today`,
}

const genericDemoOutput = "Demo output generated successfully. Install Ollama from https://ollama.ai and run 'ollama serve' for live results."

func demoResult(agentID string, kind models.NodeType, model, input string) *models.AgentResult {
	output, ok := demoOutputs[agentID]
	if !ok {
		output = genericDemoOutput
	}

	// Synthetic but plausible usage numbers so the metrics pages have
	// something to show in demo installs.
	inputTokens := int64(len(input) / 4)
	outputTokens := int64(len(output) / 4)

	return &models.AgentResult{
		AgentType: agentID,
		ModelName: model,
		Output:    output,
		Usage: models.TokenUsage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
		},
		DurationMs: 50,
		DemoMode:   true,
	}
}
