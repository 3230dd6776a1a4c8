package cmdutil

import (
	"github.com/spf13/pflag"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/instance"
	"github.com/schmitthub/stencil/internal/options"
)

// RequestFlags are the flags shared by commands that materialize a template.
type RequestFlags struct {
	Configuration string
	Exclude       []string
	Include       []string
}

// AddFlags registers --configuration, --exclude and --include on fs.
func (rf *RequestFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&rf.Configuration, "configuration", "c", options.Debug.String(), "Build configuration (Debug or Release)")
	fs.StringSliceVar(&rf.Exclude, "exclude", nil, "Feature to leave out of the project (repeatable)")
	fs.StringSliceVar(&rf.Include, "include", nil, "Feature to force back in after --exclude (repeatable)")
}

// Request resolves the flags into an instance request for kind.
// Invalid values are reported as FlagErrors.
func (rf *RequestFlags) Request(kind string) (instance.Request, error) {
	if kind == "" {
		kind = catalog.WebAPI.String()
	}
	cfg, err := options.ParseConfiguration(rf.Configuration)
	if err != nil {
		return instance.Request{}, FlagErrorWrap(err)
	}
	set := options.New()
	for _, f := range rf.Exclude {
		set = set.WithExclude(f)
	}
	for _, f := range rf.Include {
		set = set.WithInclude(f)
	}
	return instance.Request{
		Kind:          catalog.Kind(kind),
		Configuration: cfg,
		Options:       set,
	}, nil
}
