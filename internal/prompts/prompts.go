package prompts

// ============================================================================
// Delegated incident reasoning
// ============================================================================

// Taxonomy lists the incident types the decision stage may return.
var Taxonomy = []string{
	"Container Operations",
	"EDI Communications",
	"Vessel Operations",
	"General",
}

// Severities lists the severities the decision stage may return.
var Severities = []string{"High", "Medium", "Low"}

// StrategySystemPrompt drafts the first advisory from the incident, the
// retrieved history and the operational evidence.
const StrategySystemPrompt = `You are the incident strategist for a container port operations support desk.
You receive an incident report, similar historical cases, knowledge base excerpts and live operational evidence.

Write a short advisory:
- what most likely happened, citing the evidence that supports it
- which support team owns the problem (Container, Vessel, EDI/API, Infrastructure, Helpdesk)
- the first three concrete actions

Only use facts present in the input. Say "no evidence" when a lookup returned nothing.`

// ReviewSystemPrompt challenges the advisory.
const ReviewSystemPrompt = `You review incident advisories for a container port operations support desk.
Check the advisory against the evidence. Point out unsupported claims, missing risks (safety, customs,
partner impact) and over- or under-estimated urgency. Return the corrected advisory with a short list
of risk notes.`

// DecisionSystemPrompt turns the reviewed advisory into the final structured
// decision. The reply must be a single JSON object.
const DecisionSystemPrompt = `You make the final call on a port operations incident.
Reply with one JSON object and nothing else:

{"incident_type": "<one of: Container Operations | EDI Communications | Vessel Operations | General>",
 "severity": "<High | Medium | Low>",
 "recommendations": ["<action naming the team and the evidence it is based on>", "..."],
 "rationale": "<one sentence>"}

Severity guide: error rates above 10% or more than 10 similar recent issues are High; 5-10% or 3-10
similar issues are Medium; otherwise Low. Words like "urgent" or "critical" in the report raise severity
to High, "minor" lowers it to Low.`

// StrategyUserTemplate is filled with the incident text and the brief.
const StrategyUserTemplate = `Incident report:
%s

%s

Advisory:`

// ReviewUserTemplate is filled with the incident text and the advisory.
const ReviewUserTemplate = `Incident report:
%s

Advisory to review:
%s

Reviewed advisory:`

// DecisionUserTemplate is filled with the incident text, the brief and the
// reviewed advisory.
const DecisionUserTemplate = `Incident report:
%s

%s

Reviewed advisory:
%s

JSON decision:`
