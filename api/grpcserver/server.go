package grpcserver

import (
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"aggregator/api/pb"
	"aggregator/service"
)

// Server adapts the Aggregator to the OrderbookAggregator gRPC service.
type Server struct {
	pb.UnimplementedOrderbookAggregatorServer
	agg    *service.Aggregator
	logger *log.Logger
}

func NewServer(agg *service.Aggregator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{agg: agg, logger: logger}
}

// -------------------- Streams --------------------

// BookSummary streams summaries for one subscriber. The subscription
// lives exactly as long as the RPC: a client disconnect cancels the
// stream context, which ends only this subscription.
func (s *Server) BookSummary(
	_ *pb.Empty,
	stream pb.OrderbookAggregator_BookSummaryServer,
) error {
	sub := s.agg.Subscribe(stream.Context())
	defer sub.Close()

	s.logger.Printf("[gRPC] BookSummary open id=%s mode=%s", sub.ID, s.agg.Mode())

	sent := 0
	for sum := range sub.C {
		if err := stream.Send(pb.FromBook(sum)); err != nil {
			s.logger.Printf("[gRPC] BookSummary id=%s send failed after %d items: %v", sub.ID, sent, err)
			return err
		}
		sent++
	}

	if err := sub.Err(); err != nil {
		s.logger.Printf("[gRPC] BookSummary id=%s closed: %v", sub.ID, err)
		if errors.Is(err, service.ErrSlowSubscriber) {
			return status.Error(codes.ResourceExhausted, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}
	if err := stream.Context().Err(); err != nil {
		return status.FromContextError(err).Err()
	}

	s.logger.Printf("[gRPC] BookSummary close id=%s items=%d", sub.ID, sent)
	return nil
}
