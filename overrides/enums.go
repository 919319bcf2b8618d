package overrides

import (
	"strconv"
	"strings"

	"github.com/timzifer/d3dxini/fuzzy"
)

// DXGI formats by value. Gaps are formats that cannot be named in a config.
var formatNames = []string{
	"UNKNOWN",
	"R32G32B32A32_TYPELESS", "R32G32B32A32_FLOAT", "R32G32B32A32_UINT", "R32G32B32A32_SINT",
	"R32G32B32_TYPELESS", "R32G32B32_FLOAT", "R32G32B32_UINT", "R32G32B32_SINT",
	"R16G16B16A16_TYPELESS", "R16G16B16A16_FLOAT", "R16G16B16A16_UNORM", "R16G16B16A16_UINT",
	"R16G16B16A16_SNORM", "R16G16B16A16_SINT",
	"R32G32_TYPELESS", "R32G32_FLOAT", "R32G32_UINT", "R32G32_SINT",
	"R32G8X24_TYPELESS", "D32_FLOAT_S8X24_UINT", "R32_FLOAT_X8X24_TYPELESS", "X32_TYPELESS_G8X24_UINT",
	"R10G10B10A2_TYPELESS", "R10G10B10A2_UNORM", "R10G10B10A2_UINT", "R11G11B10_FLOAT",
	"R8G8B8A8_TYPELESS", "R8G8B8A8_UNORM", "R8G8B8A8_UNORM_SRGB", "R8G8B8A8_UINT",
	"R8G8B8A8_SNORM", "R8G8B8A8_SINT",
	"R16G16_TYPELESS", "R16G16_FLOAT", "R16G16_UNORM", "R16G16_UINT", "R16G16_SNORM", "R16G16_SINT",
	"R32_TYPELESS", "D32_FLOAT", "R32_FLOAT", "R32_UINT", "R32_SINT",
	"R24G8_TYPELESS", "D24_UNORM_S8_UINT", "R24_UNORM_X8_TYPELESS", "X24_TYPELESS_G8_UINT",
	"R8G8_TYPELESS", "R8G8_UNORM", "R8G8_UINT", "R8G8_SNORM", "R8G8_SINT",
	"R16_TYPELESS", "R16_FLOAT", "D16_UNORM", "R16_UNORM", "R16_UINT", "R16_SNORM", "R16_SINT",
	"R8_TYPELESS", "R8_UNORM", "R8_UINT", "R8_SNORM", "R8_SINT", "A8_UNORM",
	"R1_UNORM", "R9G9B9E5_SHAREDEXP", "R8G8_B8G8_UNORM", "G8R8_G8B8_UNORM",
	"BC1_TYPELESS", "BC1_UNORM", "BC1_UNORM_SRGB",
	"BC2_TYPELESS", "BC2_UNORM", "BC2_UNORM_SRGB",
	"BC3_TYPELESS", "BC3_UNORM", "BC3_UNORM_SRGB",
	"BC4_TYPELESS", "BC4_UNORM", "BC4_SNORM",
	"BC5_TYPELESS", "BC5_UNORM", "BC5_SNORM",
	"B5G6R5_UNORM", "B5G5R5A1_UNORM", "B8G8R8A8_UNORM", "B8G8R8X8_UNORM",
	"R10G10B10_XR_BIAS_A2_UNORM", "B8G8R8A8_TYPELESS", "B8G8R8A8_UNORM_SRGB",
	"B8G8R8X8_TYPELESS", "B8G8R8X8_UNORM_SRGB",
	"BC6H_TYPELESS", "BC6H_UF16", "BC6H_SF16",
	"BC7_TYPELESS", "BC7_UNORM", "BC7_UNORM_SRGB",
}

var formats = sequence("dxgi_format_", 0, formatNames...)

// ParseFormat accepts a DXGI format name with or without the DXGI_FORMAT_
// prefix, or its numeric value.
func ParseFormat(text string) (int, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && n >= 0 && n < len(formatNames) {
		return n, nil
	}
	return formats.parse(text)
}

// FormatName returns the DXGI name of format.
func FormatName(format int) string {
	if format >= 0 && format < len(formatNames) {
		return formatNames[format]
	}
	return strconv.Itoa(format)
}

// ResourceType is the kind of a [Resource] section.
type ResourceType int

const (
	ResourceInvalid ResourceType = iota
	ResourceBuffer
	ResourceStructuredBuffer
	ResourceRawBuffer
	ResourceTexture1D
	ResourceTexture2D
	ResourceTexture3D
	ResourceTextureCube
)

var resourceTypes = sequence("", 0, "", "buffer", "structuredbuffer", "rawbuffer",
	"texture1d", "texture2d", "texture3d", "texturecube")

func (t ResourceType) String() string {
	if t == ResourceInvalid {
		return "invalid"
	}
	return resourceTypes.name(int(t))
}

// ResourceMode selects how a custom resource is created.
type ResourceMode int

const (
	ModeDefault ResourceMode = iota
	ModeAuto
	ModeStereo
	ModeMono
)

var resourceModes = sequence("", 0, "default", "auto", "stereo", "mono")

func (m ResourceMode) String() string { return resourceModes.name(int(m)) }

// Resource dimensions as reported by a resource description. They double as
// bits in fuzzy type masks.
const (
	DimensionUnknown = iota
	DimensionBuffer
	DimensionTexture1D
	DimensionTexture2D
	DimensionTexture3D
)

var dimensions = sequence("d3d11_resource_dimension_", 0, "unknown", "buffer", "texture1d", "texture2d", "texture3d")

var usages = sequence("d3d11_usage_", 0, "default", "immutable", "dynamic", "staging")

// Blend state vocabularies.
var (
	blendOps = sequence("d3d11_blend_op_", 1, "add", "subtract", "rev_subtract", "min", "max")

	blendFactors = sequence("d3d11_blend_", 1,
		"zero", "one", "src_color", "inv_src_color", "src_alpha", "inv_src_alpha",
		"dest_alpha", "inv_dest_alpha", "dest_color", "inv_dest_color", "src_alpha_sat",
		"", "", "blend_factor", "inv_blend_factor",
		"src1_color", "inv_src1_color", "src1_alpha", "inv_src1_alpha")

	comparisonFuncs = sequence("d3d11_comparison_", 1,
		"never", "less", "equal", "less_equal", "greater", "not_equal", "greater_equal", "always")

	stencilOps = sequence("d3d11_stencil_op_", 1,
		"keep", "zero", "replace", "incr_sat", "decr_sat", "invert", "incr", "decr")

	depthWriteMasks = sequence("d3d11_depth_write_mask_", 0, "zero", "all")

	fillModes = sequence("d3d11_fill_", 2, "wireframe", "solid")

	cullModes = sequence("d3d11_cull_", 1, "none", "front", "back")

	frontFaces = newEnum("", map[string]int{"clockwise": 0, "counterclockwise": 1})

	samplerFilters = sequence("", 0, "null", "point_filter", "linear_filter", "anisotropic_filter")

	transitionTypes = sequence("", 0, "linear", "cosine")

	keyTypes = sequence("", 0, "activate", "hold", "toggle", "cycle")
)

var topologies = func() enumTable {
	m := map[string]int{
		"undefined":          0,
		"point_list":         1,
		"line_list":          2,
		"line_strip":         3,
		"triangle_list":      4,
		"triangle_strip":     5,
		"line_list_adj":      10,
		"line_strip_adj":     11,
		"triangle_list_adj":  12,
		"triangle_strip_adj": 13,
	}
	for n := 1; n <= 32; n++ {
		m[strconv.Itoa(n)+"_control_point_patchlist"] = 32 + n
	}
	return newEnum("d3d11_primitive_topology_", m)
}()

// Shader compile flags accepted by [CustomShader] flags=.
var compileFlags = fuzzy.FlagNames{
	"debug":                              1 << 0,
	"skip_validation":                    1 << 1,
	"skip_optimization":                  1 << 2,
	"pack_matrix_row_major":              1 << 3,
	"pack_matrix_column_major":           1 << 4,
	"partial_precision":                  1 << 5,
	"force_vs_software_no_opt":           1 << 6,
	"force_ps_software_no_opt":           1 << 7,
	"no_preshader":                       1 << 8,
	"avoid_flow_control":                 1 << 9,
	"prefer_flow_control":                1 << 10,
	"enable_strictness":                  1 << 11,
	"enable_backwards_compatibility":     1 << 12,
	"ieee_strictness":                    1 << 13,
	"optimization_level0":                1 << 14,
	"optimization_level1":                0,
	"optimization_level2":                1<<14 | 1<<15,
	"optimization_level3":                1 << 15,
	"warnings_are_errors":                1 << 18,
	"resources_may_alias":                1 << 19,
	"enable_unbounded_descriptor_tables": 1 << 20,
	"all_resources_bound":                1 << 21,
}
