// Package param implements the parameter RPC surface as ordinary services
// routed through the general service mechanism. It proves the routing
// only: storage is a plain in-memory map with no validation or
// persistence policy.
package param

import (
	"strings"
	"sync"

	"github.com/wayfarer-robotics/rclgo/callbackgroup"
	"github.com/wayfarer-robotics/rclgo/node"
)

// Type mirrors rcl_interfaces/msg/ParameterType's discriminant.
type Type int

const (
	TypeNotSet Type = iota
	TypeBool
	TypeInteger
	TypeDouble
	TypeString
	TypeByteArray
	TypeBoolArray
	TypeIntegerArray
	TypeDoubleArray
	TypeStringArray
)

// Value is a tagged union over the parameter types above, matching
// rcl_interfaces/msg/ParameterValue's one-field-per-type layout.
type Value struct {
	Type        Type
	BoolValue   bool
	IntValue    int64
	DoubleValue float64
	StringValue string
	ByteArray   []byte
	BoolArray   []bool
	IntArray    []int64
	DoubleArray []float64
	StringArray []string
}

// Descriptor mirrors rcl_interfaces/msg/ParameterDescriptor, trimmed to
// the fields describe_parameters actually reports.
type Descriptor struct {
	Name      string
	Type      Type
	ReadOnly  bool
	Description string
}

// SetResult mirrors rcl_interfaces/msg/SetParametersResult.
type SetResult struct {
	Successful bool
	Reason     string
}

type entry struct {
	value      Value
	descriptor Descriptor
}

// Store is the in-memory parameter table a Service binds to. Safe for
// concurrent use: the executor may dispatch get/set requests from
// different worker goroutines under a Reentrant group.
type Store struct {
	mu     sync.RWMutex
	params map[string]entry
}

// NewStore returns an empty parameter store.
func NewStore() *Store {
	return &Store{params: make(map[string]entry)}
}

// Declare registers name with an initial value and descriptor, overwriting
// any existing entry. There is no declare/undeclare distinction here (no
// policy engine): Declare is a convenience for seeding
// defaults before a node starts spinning.
func (s *Store) Declare(name string, value Value, desc Descriptor) {
	desc.Name = name
	desc.Type = value.Type
	s.mu.Lock()
	s.params[name] = entry{value: value, descriptor: desc}
	s.mu.Unlock()
}

func (s *Store) get(name string) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.params[name]
	return e, ok
}

func (s *Store) set(name string, v Value) SetResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.params[name]
	if ok && e.descriptor.ReadOnly {
		return SetResult{Successful: false, Reason: "parameter is read-only: " + name}
	}
	if !ok {
		e = entry{descriptor: Descriptor{Name: name}}
	}
	e.value = v
	e.descriptor.Type = v.Type
	s.params[name] = e
	return SetResult{Successful: true}
}

// --- request/response types, one pair per rcl_interfaces service ---

type GetParametersRequest struct{ Names []string }
type GetParametersResponse struct{ Values []Value }

type GetParameterTypesRequest struct{ Names []string }
type GetParameterTypesResponse struct{ Types []Type }

type SetParametersRequest struct{ Parameters map[string]Value }
type SetParametersResponse struct{ Results map[string]SetResult }

type SetParametersAtomicallyRequest struct{ Parameters map[string]Value }
type SetParametersAtomicallyResponse struct{ Result SetResult }

type DescribeParametersRequest struct{ Names []string }
type DescribeParametersResponse struct{ Descriptors []Descriptor }

type ListParametersRequest struct{ Prefixes []string }
type ListParametersResponse struct{ Names []string }

// Service binds a Store to the six parameter services
// (get_parameters/get_parameter_types/set_parameters/
// set_parameters_atomically/describe_parameters/list_parameters) on a
// node.
type Service struct {
	store *Store
}

// Register creates the six parameter services on n, each named
// "<nodeName>/" plus the service name (e.g. "talker/get_parameters") so
// two nodes in one process never collide. They dispatch through n's ordinary service path exactly like
// any user-defined service.
func Register(n *node.Node, store *Store, group *callbackgroup.Group) (*Service, error) {
	svc := &Service{store: store}
	prefix := n.Name() + "/"

	if _, err := n.CreateService(prefix+"get_parameters", group, svc.getParameters); err != nil {
		return nil, err
	}
	if _, err := n.CreateService(prefix+"get_parameter_types", group, svc.getParameterTypes); err != nil {
		return nil, err
	}
	if _, err := n.CreateService(prefix+"set_parameters", group, svc.setParameters); err != nil {
		return nil, err
	}
	if _, err := n.CreateService(prefix+"set_parameters_atomically", group, svc.setParametersAtomically); err != nil {
		return nil, err
	}
	if _, err := n.CreateService(prefix+"describe_parameters", group, svc.describeParameters); err != nil {
		return nil, err
	}
	if _, err := n.CreateService(prefix+"list_parameters", group, svc.listParameters); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) getParameters(req any) any {
	r := req.(GetParametersRequest)
	values := make([]Value, len(r.Names))
	for i, name := range r.Names {
		if e, ok := s.store.get(name); ok {
			values[i] = e.value
		}
	}
	return GetParametersResponse{Values: values}
}

func (s *Service) getParameterTypes(req any) any {
	r := req.(GetParameterTypesRequest)
	types := make([]Type, len(r.Names))
	for i, name := range r.Names {
		if e, ok := s.store.get(name); ok {
			types[i] = e.value.Type
		}
	}
	return GetParameterTypesResponse{Types: types}
}

func (s *Service) setParameters(req any) any {
	r := req.(SetParametersRequest)
	results := make(map[string]SetResult, len(r.Parameters))
	for name, v := range r.Parameters {
		results[name] = s.store.set(name, v)
	}
	return SetParametersResponse{Results: results}
}

// setParametersAtomically applies every parameter, or none: if any entry
// is read-only the whole batch is rejected before anything is written,
// matching rcl_interfaces/srv/SetParametersAtomically's all-or-nothing
// contract.
func (s *Service) setParametersAtomically(req any) any {
	r := req.(SetParametersAtomicallyRequest)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for name := range r.Parameters {
		if e, ok := s.store.params[name]; ok && e.descriptor.ReadOnly {
			return SetParametersAtomicallyResponse{
				Result: SetResult{Successful: false, Reason: "parameter is read-only: " + name},
			}
		}
	}
	for name, v := range r.Parameters {
		e := s.store.params[name]
		e.value = v
		e.descriptor.Name = name
		e.descriptor.Type = v.Type
		s.store.params[name] = e
	}
	return SetParametersAtomicallyResponse{Result: SetResult{Successful: true}}
}

func (s *Service) describeParameters(req any) any {
	r := req.(DescribeParametersRequest)
	descs := make([]Descriptor, 0, len(r.Names))
	for _, name := range r.Names {
		if e, ok := s.store.get(name); ok {
			descs = append(descs, e.descriptor)
		}
	}
	return DescribeParametersResponse{Descriptors: descs}
}

func (s *Service) listParameters(req any) any {
	r := req.(ListParametersRequest)
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var names []string
	for name := range s.store.params {
		if len(r.Prefixes) == 0 {
			names = append(names, name)
			continue
		}
		for _, p := range r.Prefixes {
			if strings.HasPrefix(name, p) {
				names = append(names, name)
				break
			}
		}
	}
	return ListParametersResponse{Names: names}
}
