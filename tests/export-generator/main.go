package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
)

type ExportMessage struct {
	Marketplace string `json:"marketplace"`
	SourceURL   string `json:"source_url"`
	CSV         string `json:"csv"`
}

var header = strings.Join([]string{
	"Order ID", "Created", "Status", "SKU", "Product", "Quantity", "Unit price",
	"Buyer name", "Buyer email", "Buyer phone", "Shipping name", "Address 1",
	"Address 2", "City", "Postcode", "Country", "Total", "Shipping cost",
}, ",")

var cities = []struct{ name, postcode string }{
	{"Madrid", "28001"},
	{"Barcelona", "08001"},
	{"Valencia", "46002"},
	{"Sevilla", "41004"},
}

func randomString(n int) string {
	letters := []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func generateExport() ExportMessage {
	var rows []string
	rows = append(rows, header)
	for i := 0; i < 1+rand.Intn(4); i++ {
		city := cities[rand.Intn(len(cities))]
		qty := 1 + rand.Intn(3)
		price := float64(500+rand.Intn(5000)) / 100
		rows = append(rows, strings.Join([]string{
			"MIR-" + randomString(8),
			time.Now().Format(time.RFC3339),
			"PENDING",
			"SKU-" + randomString(5),
			"Product " + randomString(4),
			fmt.Sprintf("%d", qty),
			fmt.Sprintf("%.2f", price),
			"John Doe",
			fmt.Sprintf("user%d@example.com", rand.Intn(1000)),
			fmt.Sprintf("+346%08d", rand.Intn(100000000)),
			"John Doe",
			fmt.Sprintf("Calle Mayor %d", rand.Intn(100)),
			"",
			city.name,
			city.postcode,
			"ES",
			fmt.Sprintf("%.2f", price*float64(qty)),
			"4.99",
		}, ","))
	}
	return ExportMessage{
		Marketplace: "mirakl",
		SourceURL:   "https://marketplace.mirakl.net/api/orders/export",
		CSV:         strings.Join(rows, "\n") + "\n",
	}
}

func main() {
	addr := kafka.TCP("localhost:9092")

	writer := &kafka.Writer{
		Addr:  addr,
		Topic: "marketplace-exports",
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	ticker := time.NewTicker(2 * time.Second)
	for {
		select {
		case <-ticker.C:
			export := generateExport()
			data, _ := json.Marshal(export)
			writer.WriteMessages(context.Background(), kafka.Message{Value: data})
			log.Println("export generated", len(strings.Split(export.CSV, "\n"))-2, "orders")
		case <-ctx.Done():
			return
		}
	}
}
