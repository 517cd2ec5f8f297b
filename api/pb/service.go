package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const OrderbookAggregator_BookSummary_FullMethodName = "/orderbook.OrderbookAggregator/BookSummary"

// OrderbookAggregatorServer is the server API for OrderbookAggregator.
type OrderbookAggregatorServer interface {
	BookSummary(*Empty, OrderbookAggregator_BookSummaryServer) error
}

type OrderbookAggregator_BookSummaryServer = grpc.ServerStreamingServer[Summary]

// UnimplementedOrderbookAggregatorServer can be embedded for forward compatibility.
type UnimplementedOrderbookAggregatorServer struct{}

func (UnimplementedOrderbookAggregatorServer) BookSummary(*Empty, OrderbookAggregator_BookSummaryServer) error {
	return status.Errorf(codes.Unimplemented, "method BookSummary not implemented")
}

func RegisterOrderbookAggregatorServer(s grpc.ServiceRegistrar, srv OrderbookAggregatorServer) {
	s.RegisterService(&OrderbookAggregator_ServiceDesc, srv)
}

func _OrderbookAggregator_BookSummary_Handler(srv any, stream grpc.ServerStream) error {
	m := new(Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(OrderbookAggregatorServer).BookSummary(m, &grpc.GenericServerStream[Empty, Summary]{ServerStream: stream})
}

var OrderbookAggregator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "orderbook.OrderbookAggregator",
	HandlerType: (*OrderbookAggregatorServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "BookSummary",
			Handler:       _OrderbookAggregator_BookSummary_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "orderbook.proto",
}

// -------------------- Client --------------------

type OrderbookAggregatorClient interface {
	BookSummary(ctx context.Context, in *Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Summary], error)
}

type orderbookAggregatorClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderbookAggregatorClient(cc grpc.ClientConnInterface) OrderbookAggregatorClient {
	return &orderbookAggregatorClient{cc}
}

func (c *orderbookAggregatorClient) BookSummary(ctx context.Context, in *Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Summary], error) {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	stream, err := c.cc.NewStream(ctx, &OrderbookAggregator_ServiceDesc.Streams[0], OrderbookAggregator_BookSummary_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Empty, Summary]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
