package vkframe

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
)

func debugMessengerCreateInfo() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

// createDebugMessenger registers the warning-and-above validation
// callback. Only called when validation is enabled; the messenger is
// destroyed right before the instance that owns it.
func createDebugMessenger(instance core1_0.Instance) (ext_debug_utils.DebugUtilsMessenger, error) {
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(instance)
	messenger, _, err := debugLoader.CreateDebugUtilsMessenger(instance, nil, debugMessengerCreateInfo())
	if err != nil {
		return nil, errors.Wrap(err, "create debug messenger")
	}
	return messenger, nil
}
