package firestore

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	accountsCollectionBase     = "bookkeeping-accounts"
	statementsCollectionBase   = "bookkeeping-statements"
	transactionsCollectionBase = "bookkeeping-transactions"
)

var branchSanitizer = regexp.MustCompile(`[^a-z0-9-]`)

// CollectionPrefix returns explicit when set. Otherwise it derives a prefix
// from the deployment environment:
//
//	PR_NUMBER=123            -> "pr_123_"
//	BRANCH_NAME=feature/auth -> "preview_feature-auth_"
//	BRANCH_NAME=main         -> ""
//	(no env vars)            -> ""
func CollectionPrefix(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if prNumber := os.Getenv("PR_NUMBER"); prNumber != "" {
		return fmt.Sprintf("pr_%s_", prNumber)
	}
	if branchName := os.Getenv("BRANCH_NAME"); branchName != "" && branchName != "main" {
		sanitized := branchSanitizer.ReplaceAllString(strings.ToLower(branchName), "-")
		if len(sanitized) > 50 {
			sanitized = sanitized[:50]
		}
		return fmt.Sprintf("preview_%s_", sanitized)
	}
	return ""
}
