package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// PipelineActions are the IAM actions the pipeline needs at runtime.
var PipelineActions = []string{
	"dynamodb:BatchWriteItem",
	"s3:GetObject",
	"s3:PutObject",
	"s3:ListBucket",
	"sns:Publish",
	"sqs:ReceiveMessage",
	"sqs:DeleteMessage",
}

// Preflight simulates the pipeline's IAM actions for the given principal
// and returns an error listing every denied action. Running it before the
// pipeline starts turns a mid-run AccessDenied into a startup failure.
func Preflight(ctx context.Context, client IAMClient, principalARN string, actions []string) error {
	if principalARN == "" {
		return fmt.Errorf("principal ARN is required for preflight")
	}
	if len(actions) == 0 {
		actions = PipelineActions
	}

	resp, err := client.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: &principalARN,
		ActionNames:     actions,
	})
	if err != nil {
		return fmt.Errorf("failed to simulate principal policy: %w", err)
	}

	var denied []string
	for _, result := range resp.EvaluationResults {
		if result.EvalDecision != iamtypes.PolicyEvaluationDecisionTypeAllowed {
			if result.EvalActionName != nil {
				denied = append(denied, *result.EvalActionName)
			}
		}
	}
	if len(denied) > 0 {
		return fmt.Errorf("preflight denied actions: %v", denied)
	}

	return nil
}
