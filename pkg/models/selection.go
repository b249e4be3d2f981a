package models

// SelectionMethod identifies which layer of the cascading selector produced
// a LambdaSelection.
type SelectionMethod string

const (
	MethodStaticAnnotation    SelectionMethod = "static_annotation"
	MethodRecursiveReasoning  SelectionMethod = "trm_recursive_reasoning"
	MethodAIFunctionCalling   SelectionMethod = "ai_function_calling"
	MethodRuleBased           SelectionMethod = "rule_based"
)

// LambdaFunction is a member of the closed enumeration of remediation
// endpoints the Selector is allowed to choose.
type LambdaFunction string

const (
	LambdaFluxReconcileKustomization  LambdaFunction = "flux-reconcile-kustomization"
	LambdaFluxReconcileGitRepository  LambdaFunction = "flux-reconcile-gitrepository"
	LambdaFluxReconcileHelmRelease    LambdaFunction = "flux-reconcile-helmrelease"
	LambdaPodRestart                  LambdaFunction = "pod-restart"
	LambdaPodCheckStatus              LambdaFunction = "pod-check-status"
	LambdaScaleDeployment             LambdaFunction = "scale-deployment"
	LambdaCheckPVCStatus              LambdaFunction = "check-pvc-status"
)

// AllowedLambdaFunctions is the closed set the selector must validate
// against; any value outside it is rejected.
var AllowedLambdaFunctions = map[LambdaFunction]bool{
	LambdaFluxReconcileKustomization: true,
	LambdaFluxReconcileGitRepository: true,
	LambdaFluxReconcileHelmRelease:   true,
	LambdaPodRestart:                 true,
	LambdaPodCheckStatus:             true,
	LambdaScaleDeployment:            true,
	LambdaCheckPVCStatus:             true,
}

// IsAllowedLambdaFunction reports whether name is in the closed enumeration.
func IsAllowedLambdaFunction(name string) bool {
	return AllowedLambdaFunctions[LambdaFunction(name)]
}

// LambdaSelection is the result produced by the Remediation Selector.
type LambdaSelection struct {
	LambdaFunction      string
	Parameters          map[string]interface{}
	Method              SelectionMethod
	Confidence          float64
	Reasoning           string
	SimilarIncidents    int
	FewShotExamples     int
}

// Name returns parameters["name"] as a string, or "".
func (s *LambdaSelection) Name() string {
	return stringParam(s.Parameters, "name")
}

// Namespace returns parameters["namespace"] as a string, or "".
func (s *LambdaSelection) Namespace() string {
	return stringParam(s.Parameters, "namespace")
}

func stringParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
