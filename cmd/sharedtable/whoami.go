package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// runWhoami is a connectivity/identity smoke test against a real backend
// account.
func runWhoami() error {
	ctx := context.Background()
	cfg, err := awsConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	client := sts.NewFromConfig(cfg)
	identity, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("get caller identity: %w", err)
	}

	fmt.Printf("account: %s\n", deref(identity.Account))
	fmt.Printf("arn:     %s\n", deref(identity.Arn))
	fmt.Printf("userId:  %s\n", deref(identity.UserId))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
