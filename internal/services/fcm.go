package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMService handles Firebase Cloud Messaging
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(credentialsFile string) (*FCMService, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded credentials
// This is useful for cloud deployments (Railway, Fly.io, Render) where you can't upload files easily
func NewFCMServiceFromBase64(credentialsBase64 string) (*FCMService, error) {
	ctx := context.Background()

	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}

	opt := option.WithCredentialsJSON(credentialsJSON)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// SendRouteStartedNotification notifies the driver's devices that a route
// went live
func (s *FCMService) SendRouteStartedNotification(tokens []string, routeID, routeName string, totalStops int) error {
	return s.SendMulticast(tokens,
		"Route Started",
		fmt.Sprintf("%s is now active with %d stops.", routeName, totalStops),
		map[string]string{
			"type":        "route_started",
			"route_id":    routeID,
			"total_stops": strconv.Itoa(totalStops),
		})
}

// SendRouteCompletedNotification notifies the driver's devices that a route
// finished
func (s *FCMService) SendRouteCompletedNotification(tokens []string, routeID, routeName string, completedStops, totalStops int) error {
	return s.SendMulticast(tokens,
		"Route Completed",
		fmt.Sprintf("%s finished: %d of %d stops completed.", routeName, completedStops, totalStops),
		map[string]string{
			"type":            "route_completed",
			"route_id":        routeID,
			"completed_stops": strconv.Itoa(completedStops),
			"total_stops":     strconv.Itoa(totalStops),
		})
}

// SendMulticast sends the same message to multiple tokens
func (s *FCMService) SendMulticast(tokens []string, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}
	ctx := context.Background()

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM multicast: %w", err)
	}

	log.Printf("✅ FCM multicast sent: %d success, %d failure", response.SuccessCount, response.FailureCount)
	return nil
}
