package config

// DefaultCrates are the crates whose items are bound. A function's
// canonical key must start with one of these path roots.
var DefaultCrates = []string{"ecolor", "egui", "emath", "epaint"}

// DefaultExcludeTypes are never traced.
var DefaultExcludeTypes = []string{
	"Event",
	"History",
	"InputState",
	"Options",
	"PointerState",
	"RawInput",
	"Sense",
	"Undoer",
	"UserData",
	"ViewportCommand",
}

// DefaultExcludeDefinitions have hand-written managed definitions.
var DefaultExcludeDefinitions = []string{
	"UiStack",
}

// DefaultExcludeFunctionNames are trait plumbing that has a native managed
// equivalent (operators, equality, hashing, formatting, serde, bitflags).
var DefaultExcludeFunctionNames = []string{
	"add",
	"add_assign",
	"bits",
	"clone",
	"cmp",
	"deserialize",
	"div",
	"div_assign",
	"eq",
	"fmt",
	"from",
	"from_bits",
	"from_bits_retain",
	"hash",
	"index",
	"index_mut",
	"mul",
	"mul_assign",
	"partial_cmp",
	"serialize",
	"sub",
	"sub_assign",
	"value",
}

// DefaultExcludeFunctions are dropped before ordinal assignment. Sense is a
// managed flags enum with builtin bitwise operators.
var DefaultExcludeFunctions = []string{
	"egui___run_test_ctx",
	"egui___run_test_ui",
	"egui_sense_Sense_all",
	"egui_sense_Sense_bitand",
	"egui_sense_Sense_bitand_assign",
	"egui_sense_Sense_bitor",
	"egui_sense_Sense_bitor_assign",
	"egui_sense_Sense_bitxor",
	"egui_sense_Sense_bitxor_assign",
	"egui_sense_Sense_click",
	"egui_sense_Sense_click_and_drag",
	"egui_sense_Sense_clone",
	"egui_sense_Sense_complement",
	"egui_sense_Sense_contains",
	"egui_sense_Sense_difference",
	"egui_sense_Sense_drag",
	"egui_sense_Sense_empty",
	"egui_sense_Sense_extend",
	"egui_sense_Sense_focusable_noninteractive",
	"egui_sense_Sense_from_bits_truncate",
	"egui_sense_Sense_from_iter",
	"egui_sense_Sense_from_name",
	"egui_sense_Sense_hover",
	"egui_sense_Sense_insert",
	"egui_sense_Sense_intersection",
	"egui_sense_Sense_intersects",
	"egui_sense_Sense_into_iter",
	"egui_sense_Sense_is_all",
	"egui_sense_Sense_is_empty",
	"egui_sense_Sense_iter",
	"egui_sense_Sense_iter_names",
	"egui_sense_Sense_not",
	"egui_sense_Sense_remove",
	"egui_sense_Sense_set",
	"egui_sense_Sense_sub",
	"egui_sense_Sense_sub_assign",
	"egui_sense_Sense_symmetric_difference",
	"egui_sense_Sense_toggle",
	"egui_sense_Sense_union",
}

// DefaultUnbound keep their ordinal but have no invoker yet; their
// signatures borrow from or return types whose wire form is incomplete.
var DefaultUnbound = []string{
	"egui_containers_frame_Frame_corner_radius",
	"egui_containers_frame_Frame_inner_margin",
	"egui_containers_frame_Frame_outer_margin",
	"egui_containers_frame_Frame_shadow",
	"egui_containers_frame_Frame_stroke",
	"egui_data_input_RawInput_viewport",
	"egui_data_output_OpenUrl_new_tab",
	"egui_data_output_WidgetInfo_selected",
	"egui_input_state_InputState_begin_pass",
	"egui_input_state_InputState_viewport",
	"egui_layout_Layout_align_size_within_rect",
	"egui_style_ScrollAnimation_duration",
	"egui_style_ScrollStyle_floating",
	"egui_style_Style_noninteractive",
	"egui_style_Style_text_styles",
	"egui_style_Visuals_noninteractive",
	"egui_style_Visuals_window_fill",
	"egui_style_Visuals_window_stroke",
	"egui_text_selection_cursor_range_CursorRange_on_event",
	"egui_ui_stack_UiStack_contained_in",
	"egui_ui_stack_UiStack_frame",
	"egui_ui_stack_UiStack_has_visible_frame",
	"egui_ui_stack_UiStack_is_area_ui",
	"egui_ui_stack_UiStack_is_panel_ui",
	"egui_ui_stack_UiStack_is_root_ui",
	"egui_viewport_ViewportIdPair_from_self_and_parent",
}
