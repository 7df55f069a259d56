package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Client holds the Firebase app and the clients derived from it.
type Client struct {
	App       *firebase.App
	Firestore *firestore.Client
	Auth      *auth.Client
	projectID string
}

// NewClient initializes Firebase with Application Default Credentials, or with
// the given credentials file when credsPath is set.
func NewClient(ctx context.Context, projectID, credsPath string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{
		App:       app,
		Firestore: firestoreClient,
		Auth:      authClient,
		projectID: projectID,
	}, nil
}

// ProjectID returns the Firebase project the client is bound to.
func (c *Client) ProjectID() string {
	return c.projectID
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}
