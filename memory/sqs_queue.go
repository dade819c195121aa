// Copyright 2025 VentureScope
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// sqsAPI is the subset of the SQS client used by SQSQueue, extracted as an
// interface so tests can substitute a mock client.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue is the distributed KnowledgeQueue implementation. SQS provides
// at-least-once delivery; the receipt handle returned on receive is the
// acknowledgement token passed back to Delete.
type SQSQueue struct {
	queueURL string
	region   string
	client   sqsAPI
}

// NewSQSQueue creates a queue adapter for the given SQS queue URL
func NewSQSQueue(queueURL, region string) *SQSQueue {
	return &SQSQueue{queueURL: queueURL, region: region}
}

// Connect loads AWS credentials from the environment and builds the client
func (q *SQSQueue) Connect(ctx context.Context) error {
	if q.client != nil {
		return nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(q.region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	q.client = sqs.NewFromConfig(cfg)
	return nil
}

// Disconnect releases the client. The SQS client holds no persistent
// connection, so this only clears state.
func (q *SQSQueue) Disconnect(ctx context.Context) error {
	q.client = nil
	return nil
}

// Send publishes an envelope, optionally delayed. SQS caps DelaySeconds at
// 15 minutes; longer delays are truncated.
func (q *SQSQueue) Send(ctx context.Context, envelope KnowledgeEnvelope, delay time.Duration) error {
	if q.client == nil {
		return fmt.Errorf("sqs queue not connected")
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	delaySeconds := int32(delay / time.Second)
	if delaySeconds < 0 {
		delaySeconds = 0
	}
	if delaySeconds > 900 {
		delaySeconds = 900
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive long-polls for up to maxMessages messages. Messages whose body
// fails to decode are acknowledged and dropped so a poison message cannot
// wedge every consumer.
func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]QueueMessage, error) {
	if q.client == nil {
		return nil, fmt.Errorf("sqs queue not connected")
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}
	if maxMessages > 10 {
		maxMessages = 10 // SQS per-call ceiling
	}

	waitSeconds := int32(wait / time.Second)
	if waitSeconds > 20 {
		waitSeconds = 20
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     waitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]QueueMessage, 0, len(out.Messages))
	for _, msg := range out.Messages {
		var envelope KnowledgeEnvelope
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &envelope); err != nil {
			log.Printf("[SQSQueue] Dropping undecodable message %s: %v", aws.ToString(msg.MessageId), err)
			_ = q.Delete(ctx, aws.ToString(msg.ReceiptHandle))
			continue
		}
		messages = append(messages, QueueMessage{
			ID:      aws.ToString(msg.MessageId),
			Receipt: aws.ToString(msg.ReceiptHandle),
			Body:    envelope,
		})
	}
	return messages, nil
}

// Delete acknowledges a message by its receipt handle
func (q *SQSQueue) Delete(ctx context.Context, receipt string) error {
	if q.client == nil {
		return fmt.Errorf("sqs queue not connected")
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
