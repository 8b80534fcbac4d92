// Package main provides a synthetic post generator for exercising the
// pipeline: it writes disaster-looking (and benign) posts as JSON lines
// to stdout, a file, a Kafka topic, or an SQS queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	awsx "github.com/crisiswatch/crisiswatch/aws"
	"github.com/crisiswatch/crisiswatch/post"
)

// templates phrase the generated posts per category. %s is the location.
var templates = map[string][]string{
	"earthquake": {
		"Massive earthquake just hit %s, buildings collapsed downtown",
		"Felt a strong tremor in %s a minute ago, aftershocks continuing",
		"Magnitude 6.8 earthquake reported near %s, people trapped under rubble",
	},
	"flood": {
		"Flash flood warning in %s, streets completely submerged",
		"River overflowing in %s, evacuation underway",
		"Heavy flooding in %s, rescue teams deployed",
	},
	"wildfire": {
		"Wildfire spreading fast near %s, thousands of acres burned",
		"Evacuation ordered as forest fire approaches %s",
		"Smoke everywhere in %s, the fire is out of control",
	},
	"hurricane": {
		"Hurricane making landfall in %s, catastrophic storm surge expected",
		"Tropical storm battering %s, power out across the city",
	},
	"tornado": {
		"Tornado touched down near %s, homes destroyed",
		"Funnel cloud spotted outside %s, tornado warning issued",
	},
}

// benign posts keep the classifier honest during tests.
var benign = []string{
	"Beautiful sunset over the bay tonight",
	"New coffee shop opened downtown, the espresso is great",
	"Local team wins the championship after overtime thriller",
	"Traffic is terrible on the highway again this morning",
}

var locations = []string{
	"california", "tokyo", "manila", "jakarta", "istanbul",
	"mexico city", "new orleans", "miami", "santiago", "kathmandu",
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("postgen", flag.ExitOnError)

	count := fs.Int("count", 100, "number of posts to generate")
	disasterRatio := fs.Float64("disaster-ratio", 0.4, "fraction of posts that look like disasters")
	seed := fs.Int64("seed", time.Now().UnixNano(), "random seed")
	outFile := fs.String("out", "", "output file (default stdout)")
	kafkaBrokers := fs.String("kafka-brokers", "", "comma-free single Kafka broker address; empty disables")
	kafkaTopic := fs.String("kafka-topic", "crisiswatch-posts", "Kafka topic")
	sqsQueue := fs.String("sqs-queue", "", "SQS queue name; empty disables")
	region := fs.String("region", "", "AWS region for SQS output")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	r := rand.New(rand.NewSource(*seed))
	ctx := context.Background()

	posts := make([]post.Post, 0, *count)
	for i := 0; i < *count; i++ {
		posts = append(posts, generate(r, i, *disasterRatio))
	}

	switch {
	case *kafkaBrokers != "":
		return writeKafka(ctx, posts, *kafkaBrokers, *kafkaTopic)
	case *sqsQueue != "":
		return writeSQS(ctx, posts, *sqsQueue, *region)
	default:
		return writeLines(posts, *outFile)
	}
}

// generate builds one synthetic post.
func generate(r *rand.Rand, n int, disasterRatio float64) post.Post {
	p := post.Post{
		ID:        fmt.Sprintf("gen-%06d", n),
		Source:    "postgen",
		Author:    fmt.Sprintf("user%04d", r.Intn(10000)),
		CreatedAt: time.Now().UTC().Add(-time.Duration(r.Intn(300)) * time.Second),
	}

	if r.Float64() >= disasterRatio {
		p.Text = benign[r.Intn(len(benign))]
		return p
	}

	categories := make([]string, 0, len(templates))
	for c := range templates {
		categories = append(categories, c)
	}
	category := categories[r.Intn(len(categories))]
	tmpl := templates[category][r.Intn(len(templates[category]))]
	p.Text = fmt.Sprintf(tmpl, locations[r.Intn(len(locations))])
	return p
}

// writeLines writes the posts as JSON lines to a file or stdout.
func writeLines(posts []post.Post, path string) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, p := range posts {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to encode post: %w", err)
		}
	}
	return nil
}

// writeKafka publishes the posts to a Kafka topic.
func writeKafka(ctx context.Context, posts []post.Post, broker, topic string) error {
	w := &kafka.Writer{
		Addr:     kafka.TCP(broker),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer func() { _ = w.Close() }()

	msgs := make([]kafka.Message, 0, len(posts))
	for _, p := range posts {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode post: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(p.ID), Value: body})
	}

	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write Kafka messages: %w", err)
	}
	log.Printf("Wrote %d posts to Kafka topic %s", len(msgs), topic)
	return nil
}

// writeSQS sends the posts to an SQS queue one message per post.
func writeSQS(ctx context.Context, posts []post.Post, queueName, region string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sendSQS(ctx, awsx.NewSQSClient(sqs.NewFromConfig(awsCfg)), posts, queueName)
}

// sendSQS resolves the queue URL and publishes each post body.
func sendSQS(ctx context.Context, client awsx.SQSClient, posts []post.Post, queueName string) error {
	urlResp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: &queueName})
	if err != nil {
		return fmt.Errorf("failed to get queue URL: %w", err)
	}

	for _, p := range posts {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode post: %w", err)
		}
		msg := string(body)
		if _, err := client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    urlResp.QueueUrl,
			MessageBody: &msg,
		}); err != nil {
			return fmt.Errorf("failed to send post %s: %w", p.ID, err)
		}
	}
	log.Printf("Sent %d posts to SQS queue %s", len(posts), queueName)
	return nil
}
