package plugin

import (
	"context"
	"errors"

	"discflow/internal/job"
)

type basePlugin struct {
	name     string
	unloaded *int
	unload   error
}

func (b *basePlugin) Name() string { return b.name }

func (b *basePlugin) Unload() error {
	if b.unloaded != nil {
		*b.unloaded++
	}
	return b.unload
}

type fakeReader struct{ basePlugin }

func (f *fakeReader) ReadDisc(context.Context, Host, string) (*job.Disc, error) {
	return &job.Disc{}, nil
}

type fakeMuxer struct{ basePlugin }

func (f *fakeMuxer) Mux(context.Context, Host, *job.Job) error { return nil }

type fakeProvider struct{ basePlugin }

func (f *fakeProvider) GetMetadata(context.Context, Host, *job.Job) error { return nil }

type fakeAmbiguous struct{ basePlugin }

func (f *fakeAmbiguous) Mux(context.Context, Host, *job.Job) error { return nil }

func (f *fakeAmbiguous) PostProcess(context.Context, Host, *job.Job) error { return nil }

type fakeBare struct{ basePlugin }

type enabledSet map[string]bool

func (s enabledSet) IsPluginEnabled(guid string) bool {
	enabled, ok := s[guid]
	return !ok || enabled
}

// testCatalog registers fake factories. unloads counts Unload calls across
// every instance created.
func testCatalog(unloads *int) *Catalog {
	c := NewCatalog()
	c.MustRegister("test.reader", func(p FactoryParams) (Plugin, error) {
		return &fakeReader{basePlugin{name: p.Name, unloaded: unloads}}, nil
	})
	c.MustRegister("test.muxer", func(p FactoryParams) (Plugin, error) {
		return &fakeMuxer{basePlugin{name: p.Name, unloaded: unloads}}, nil
	})
	c.MustRegister("test.provider", func(p FactoryParams) (Plugin, error) {
		return &fakeProvider{basePlugin{name: p.Name, unloaded: unloads}}, nil
	})
	c.MustRegister("test.ambiguous", func(p FactoryParams) (Plugin, error) {
		return &fakeAmbiguous{basePlugin{name: p.Name, unloaded: unloads}}, nil
	})
	c.MustRegister("test.bare", func(p FactoryParams) (Plugin, error) {
		return &fakeBare{basePlugin{name: p.Name, unloaded: unloads}}, nil
	})
	c.MustRegister("test.failing", func(FactoryParams) (Plugin, error) {
		return nil, errors.New("missing dependency")
	})
	c.MustRegister("test.panicking", func(FactoryParams) (Plugin, error) {
		panic("boom")
	})
	c.MustRegister("test.badunload", func(p FactoryParams) (Plugin, error) {
		return &fakeMuxer{basePlugin{name: p.Name, unloaded: unloads, unload: errors.New("busy")}}, nil
	})
	return c
}
