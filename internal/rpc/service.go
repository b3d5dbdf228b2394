package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Service and method names shared by clients and servers.
const (
	AudioServiceName     = "voxalys.audio.v1.AudioService"
	AsrServiceName       = "voxalys.asr.v1.AsrService"
	AlignmentServiceName = "voxalys.alignment.v1.AlignmentService"

	MethodTransformAudio   = "/" + AudioServiceName + "/TransformAudio"
	MethodTranscribe       = "/" + AsrServiceName + "/Transcribe"
	MethodEnrichTranscript = "/" + AlignmentServiceName + "/EnrichTranscript"
)

// AudioServer is the audio service contract.
type AudioServer interface {
	TransformAudio(ctx context.Context, req *TransformAudioRequest) (*TransformAudioResponse, error)
}

// AsrServer is the asr service contract.
type AsrServer interface {
	Transcribe(ctx context.Context, req *TranscribeAudioRequest) (*TranscribeAudioResponse, error)
}

// AlignmentServer is the alignment service contract.
type AlignmentServer interface {
	EnrichTranscript(ctx context.Context, req *EnrichTranscriptRequest) (*EnrichTranscriptResponse, error)
}

// RegisterAudioServer registers an audio service implementation.
func RegisterAudioServer(s grpc.ServiceRegistrar, srv AudioServer) {
	s.RegisterService(&AudioServiceDesc, srv)
}

// RegisterAsrServer registers an asr service implementation.
func RegisterAsrServer(s grpc.ServiceRegistrar, srv AsrServer) {
	s.RegisterService(&AsrServiceDesc, srv)
}

// RegisterAlignmentServer registers an alignment service implementation.
func RegisterAlignmentServer(s grpc.ServiceRegistrar, srv AlignmentServer) {
	s.RegisterService(&AlignmentServiceDesc, srv)
}

// unaryHandler adapts a typed unary method to the grpc.MethodDesc shape.
func unaryHandler[Req any, Resp any](method string, call func(srv any, ctx context.Context, req *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// AudioServiceDesc is the grpc.ServiceDesc for the audio service.
var AudioServiceDesc = grpc.ServiceDesc{
	ServiceName: AudioServiceName,
	HandlerType: (*AudioServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "TransformAudio",
			Handler: unaryHandler(MethodTransformAudio,
				func(srv any, ctx context.Context, req *TransformAudioRequest) (*TransformAudioResponse, error) {
					return srv.(AudioServer).TransformAudio(ctx, req)
				}),
		},
	},
	Metadata: "voxalys/audio/v1",
}

// AsrServiceDesc is the grpc.ServiceDesc for the asr service.
var AsrServiceDesc = grpc.ServiceDesc{
	ServiceName: AsrServiceName,
	HandlerType: (*AsrServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Transcribe",
			Handler: unaryHandler(MethodTranscribe,
				func(srv any, ctx context.Context, req *TranscribeAudioRequest) (*TranscribeAudioResponse, error) {
					return srv.(AsrServer).Transcribe(ctx, req)
				}),
		},
	},
	Metadata: "voxalys/asr/v1",
}

// AlignmentServiceDesc is the grpc.ServiceDesc for the alignment service.
var AlignmentServiceDesc = grpc.ServiceDesc{
	ServiceName: AlignmentServiceName,
	HandlerType: (*AlignmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "EnrichTranscript",
			Handler: unaryHandler(MethodEnrichTranscript,
				func(srv any, ctx context.Context, req *EnrichTranscriptRequest) (*EnrichTranscriptResponse, error) {
					return srv.(AlignmentServer).EnrichTranscript(ctx, req)
				}),
		},
	},
	Metadata: "voxalys/alignment/v1",
}
