package discovery

import (
	"context"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Permission is one verb on one core resource.
type Permission struct {
	Group    string
	Resource string
	Verb     string
}

func (p Permission) String() string {
	if p.Group == "" {
		return p.Verb + " " + p.Resource
	}
	return p.Verb + " " + p.Resource + "." + p.Group
}

// RequiredPermissions lists what a poll needs: listing pods across
// namespaces, reading nodes, and reading single pods for command lookup.
// DCGM discovery additionally lists nodes.
func RequiredPermissions(dcgmDiscovery bool) []Permission {
	perms := []Permission{
		{Resource: "pods", Verb: "list"},
		{Resource: "pods", Verb: "get"},
		{Resource: "nodes", Verb: "get"},
	}
	if dcgmDiscovery {
		perms = append(perms, Permission{Resource: "nodes", Verb: "list"})
	}
	return perms
}

// Preflight checks each permission with a SelfSubjectAccessReview and
// returns the ones that are denied. An error is returned only when the
// review itself fails.
func Preflight(ctx context.Context, client kubernetes.Interface, perms []Permission) ([]Permission, error) {
	var denied []Permission
	for _, p := range perms {
		allowed, err := CheckAccess(ctx, client, p)
		if err != nil {
			return nil, err
		}
		if !allowed {
			denied = append(denied, p)
		}
	}
	return denied, nil
}

// CheckAccess creates a SelfSubjectAccessReview for a single permission
// across all namespaces.
func CheckAccess(ctx context.Context, client kubernetes.Interface, p Permission) (bool, error) {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Verb:     p.Verb,
				Group:    p.Group,
				Resource: p.Resource,
			},
		},
	}

	result, err := client.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return false, fmt.Errorf("discovery: SelfSubjectAccessReview for %s: %w", p, err)
	}

	return result.Status.Allowed, nil
}
