package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	pb "aggregator/api/pb"
)

func main() {
	def := os.Getenv("AGG_GRPC_ADDR")
	if def == "" {
		def = "[::1]:10000"
	}
	addr := flag.String("addr", def, "aggregator gRPC address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	stream, err := pb.NewOrderbookAggregatorClient(conn).BookSummary(ctx, &pb.Empty{})
	if err != nil {
		log.Fatalf("BookSummary: %v", err)
	}

	for {
		s, err := stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return
		}
		if err != nil {
			log.Fatalf("recv: %v", err)
		}
		printSummary(s)
	}
}

func printSummary(s *pb.Summary) {
	fmt.Printf("spread=%g\n", s.Spread)
	for _, l := range s.Bids {
		fmt.Printf("  bid %-10s %.8f x %.8f\n", l.Exchange, l.Price, l.Amount)
	}
	for _, l := range s.Asks {
		fmt.Printf("  ask %-10s %.8f x %.8f\n", l.Exchange, l.Price, l.Amount)
	}
}
