package workflow

// Well-known agent ids for the standard pipeline.
const (
	AgentPlanner  = "planner"
	AgentExecutor = "executor"
	AgentReviewer = "reviewer"
)

// StandardWorkflow returns the stock planner -> executor -> reviewer chain.
// Budgets: planning gets 3 minutes and two retries, execution 10 minutes and
// one retry, review 5 minutes and two retries.
func StandardWorkflow() WorkflowDefinition {
	return WorkflowDefinition{
		Name: "standard",
		Steps: []StepDefinition{
			{
				ID:             AgentPlanner,
				AgentID:        AgentPlanner,
				TimeoutSeconds: 180,
				MaxRetries:     2,
			},
			{
				ID:             AgentExecutor,
				AgentID:        AgentExecutor,
				DependsOn:      []string{AgentPlanner},
				TimeoutSeconds: 600,
				MaxRetries:     1,
			},
			{
				ID:             AgentReviewer,
				AgentID:        AgentReviewer,
				DependsOn:      []string{AgentExecutor},
				TimeoutSeconds: 300,
				MaxRetries:     2,
			},
		},
	}
}
