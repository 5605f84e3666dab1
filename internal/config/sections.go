package config

// Typed projections onto specific stage sections, per the recognized-options
// table in spec.md §4.4. Each accessor reads/writes through the section's
// free-form map so values set by another process (or an unknown future key)
// are never discarded — mirroring ppb's persistentData, generalized from
// strings to TOML-native types.

type ProjectSection struct{ Name, Root string }

func GetProject(doc *Document) ProjectSection {
	s := StageView(doc, StageProject)
	return ProjectSection{
		Name: stringOr(s, "name", ""),
		Root: stringOr(s, "root", ""),
	}
}
func SetProject(doc *Document, p ProjectSection) {
	Update(doc, StageProject, map[string]interface{}{"name": p.Name, "root": p.Root})
}

type LLVMSection struct {
	Source string            // auto, embedded, artifact
	Tools  map[string]string // tool -> absolute path
}

func GetLLVM(doc *Document) LLVMSection {
	s := StageView(doc, StageLLVM)
	out := LLVMSection{Source: stringOr(s, "source", "auto"), Tools: map[string]string{}}
	if raw, ok := s["tools"].(map[string]interface{}); ok {
		for k, v := range raw {
			if str, ok := v.(string); ok {
				out.Tools[k] = str
			}
		}
	}
	return out
}
func SetLLVM(doc *Document, l LLVMSection) {
	tools := map[string]interface{}{}
	for k, v := range l.Tools {
		tools[k] = v
	}
	Update(doc, StageLLVM, map[string]interface{}{"source": l.Source, "tools": tools})
}

type DiscoverySection struct {
	IncludeDirs []string
	MaxDepth    int
}

func GetDiscovery(doc *Document) DiscoverySection {
	s := StageView(doc, StageDiscovery)
	return DiscoverySection{
		IncludeDirs: stringSliceOr(s, "include_dirs", nil),
		MaxDepth:    intOr(s, "max_depth", 64),
	}
}
func SetDiscoveryResults(doc *Document, includeDirs []string, files interface{}, graph interface{}) {
	Update(doc, StageDiscovery, map[string]interface{}{
		"include_dirs": toAnySlice(includeDirs),
		"files":        files,
		"graph":        graph,
	})
}

type CompileSection struct {
	Flags      []string
	OutputDir  string
	Parallel   int
}

func GetCompile(doc *Document) CompileSection {
	s := StageView(doc, StageCompile)
	return CompileSection{
		Flags:     stringSliceOr(s, "flags", nil),
		OutputDir: stringOr(s, "output_dir", "build/ir"),
		Parallel:  intOr(s, "parallel", 0),
	}
}

type LinkSection struct {
	OptLevel string
	LTO      bool
}

func GetLink(doc *Document) LinkSection {
	s := StageView(doc, StageLink)
	return LinkSection{
		OptLevel: stringOr(s, "opt_level", "O2"),
		LTO:      boolOr(s, "lto", false),
	}
}

type BinarySection struct {
	LibraryName    string
	LinkLibraries  []string
}

func GetBinary(doc *Document) BinarySection {
	s := StageView(doc, StageBinary)
	return BinarySection{
		LibraryName:   stringOr(s, "library_name", ""),
		LinkLibraries: stringSliceOr(s, "link_libraries", nil),
	}
}
func SetBinary(doc *Document, b BinarySection) {
	Update(doc, StageBinary, map[string]interface{}{
		"library_name":   b.LibraryName,
		"link_libraries": toAnySlice(b.LinkLibraries),
	})
}

type SymbolsSection struct {
	Enabled  bool
	Demangle bool
}

func GetSymbols(doc *Document) SymbolsSection {
	s := StageView(doc, StageSymbols)
	return SymbolsSection{
		Enabled:  boolOr(s, "enabled", true),
		Demangle: boolOr(s, "demangle", true),
	}
}
func SetSymbolsResult(doc *Document, symbols []string) {
	Update(doc, StageSymbols, map[string]interface{}{"symbols": toAnySlice(symbols)})
}

type CacheSection struct {
	Enabled   bool
	Directory string
}

func GetCache(doc *Document) CacheSection {
	s := StageView(doc, StageCache)
	return CacheSection{
		Enabled:   boolOr(s, "enabled", true),
		Directory: stringOr(s, "directory", ".cxxforge/cache"),
	}
}

func stringOr(s Section, key, def string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}
func intOr(s Section, key string, def int) int {
	switch v := s[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	}
	return def
}
func boolOr(s Section, key string, def bool) bool {
	if v, ok := s[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
func stringSliceOr(s Section, key string, def []string) []string {
	v, ok := s[key]
	if !ok {
		return def
	}
	raw, ok := v.([]interface{})
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, it := range raw {
		if str, ok := it.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
func toAnySlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
